package service

import (
	"context"
	"fmt"
	"iter"

	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/stemsi/assessment-runner/internal/repository"
)

// ExportBatchSize is the number of attempts read per export page.
const ExportBatchSize = 100

// ExportService streams submitted attempts for the CSV and XLSX exports.
type ExportService struct {
	attempts  AttemptStore
	answers   AnswerStore
	catalog   *catalog.Catalog
	batchSize int
}

// NewExportService creates a new ExportService.
func NewExportService(attempts AttemptStore, answers AnswerStore, cat *catalog.Catalog) *ExportService {
	return &ExportService{attempts: attempts, answers: answers, catalog: cat, batchSize: ExportBatchSize}
}

// Catalog returns the catalog that defines the export's answer columns.
func (s *ExportService) Catalog() *catalog.Catalog { return s.catalog }

// Submissions yields submitted attempts, newest completion first, reading
// one page at a time. Iteration stops at the first error, which is yielded,
// or when ctx is cancelled between pages.
func (s *ExportService) Submissions(ctx context.Context) iter.Seq2[*model.Submission, error] {
	return func(yield func(*model.Submission, error) bool) {
		var cursor *repository.ExportCursor
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := s.attempts.ListSubmittedPage(ctx, cursor, s.batchSize)
			if err != nil {
				yield(nil, fmt.Errorf("list submitted: %w", err))
				return
			}
			if len(page) == 0 {
				return
			}

			ids := make([]int64, len(page))
			for i := range page {
				ids[i] = page[i].ID
			}
			answers, err := s.answers.MapByAttempts(ctx, ids)
			if err != nil {
				yield(nil, fmt.Errorf("load answers: %w", err))
				return
			}

			for i := range page {
				sub := &model.Submission{Attempt: page[i], Answers: answers[page[i].ID]}
				if !yield(sub, nil) {
					return
				}
			}

			last := page[len(page)-1]
			if len(page) < s.batchSize || last.CompletedAt == nil {
				return
			}
			cursor = &repository.ExportCursor{CompletedAt: *last.CompletedAt, ID: last.ID}
		}
	}
}
