// Package export renders submitted attempts as CSV or XLSX. Both formats
// share the same column layout: fixed attempt columns followed by one
// answer__<question_key> column per catalog question, in catalog order.
package export

import (
	"strconv"
	"time"

	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/model"
)

// AnswerColumnPrefix prefixes every per-question column.
const AnswerColumnPrefix = "answer__"

var fixedColumns = []string{
	"attempt_id",
	"candidate_name",
	"candidate_email",
	"status",
	"started_at",
	"completed_at",
	"duration_seconds",
	"reviewed_at",
}

// flusher is implemented by http.ResponseWriter implementations that can
// push buffered bytes to the client.
type flusher interface {
	Flush()
}

// Header returns the column names for cat.
func Header(cat *catalog.Catalog) []string {
	keys := cat.Keys()
	header := make([]string, 0, len(fixedColumns)+len(keys))
	header = append(header, fixedColumns...)
	for _, k := range keys {
		header = append(header, AnswerColumnPrefix+k)
	}
	return header
}

// Record renders one submission as a row matching Header(cat).
// Unanswered questions are empty strings.
func Record(cat *catalog.Catalog, sub *model.Submission) []string {
	a := &sub.Attempt
	keys := cat.Keys()
	row := make([]string, 0, len(fixedColumns)+len(keys))
	row = append(row,
		strconv.FormatInt(a.ID, 10),
		a.CandidateName,
		a.CandidateEmail,
		string(a.Status),
		FormatTime(&a.StartedAt),
		FormatTime(a.CompletedAt),
		formatInt(a.DurationSeconds),
		FormatTime(a.ReviewedAt),
	)
	for _, k := range keys {
		row = append(row, sub.Answers[k])
	}
	return row
}

// FormatTime renders t in UTC using model.TimestampLayout, or "" for nil.
func FormatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(model.TimestampLayout)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// Filename is the attachment name for an export produced at now.
func Filename(now time.Time, ext string) string {
	return "assessment-submissions-" + now.UTC().Format("2006-01-02-150405") + "." + ext
}
