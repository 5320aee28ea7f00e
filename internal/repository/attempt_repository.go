package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/assessment-runner/internal/model"
)

// ErrNotInProgress is returned by writes that require an in-progress attempt
// when the attempt has already been submitted (or does not exist).
var ErrNotInProgress = errors.New("attempt is not in progress")

const attemptColumns = `id, token, assessment_version, candidate_name, candidate_email, status,
	started_at, completed_at, duration_seconds, last_activity_at, reviewed_at, admin_notes,
	active_session_id, active_session_updated_at, created_at, updated_at`

// ExportCursor marks the last row of the previous export page.
type ExportCursor struct {
	CompletedAt time.Time
	ID          int64
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row, a *model.Attempt) error {
	return row.Scan(
		&a.ID, &a.Token, &a.AssessmentVersion, &a.CandidateName, &a.CandidateEmail, &a.Status,
		&a.StartedAt, &a.CompletedAt, &a.DurationSeconds, &a.LastActivityAt, &a.ReviewedAt, &a.AdminNotes,
		&a.ActiveSessionID, &a.ActiveSessionUpdatedAt, &a.CreatedAt, &a.UpdatedAt,
	)
}

func collectAttempts(rows pgx.Rows) ([]model.Attempt, error) {
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Create inserts a new in-progress attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (token, assessment_version, candidate_name, candidate_email, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		a.Token, a.AssessmentVersion, a.CandidateName, a.CandidateEmail, model.AttemptStatusInProgress, a.StartedAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetByToken retrieves an attempt by its candidate token.
func (r *AttemptRepository) GetByToken(ctx context.Context, token string) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE token = $1`, token), a)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by its numeric id.
func (r *AttemptRepository) GetByID(ctx context.Context, id int64) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id), a)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SaveProgress stamps the attempt's session fields and upserts every answer
// in one transaction. The attempt row is updated first, which locks it until
// commit and rejects the write if the attempt was submitted meanwhile.
func (r *AttemptRepository) SaveProgress(ctx context.Context, p *model.Progress) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var sessionID *string
		if p.SessionID != "" {
			sessionID = &p.SessionID
		}

		tag, err := tx.Exec(ctx,
			`UPDATE attempts
			 SET last_activity_at = $2, active_session_id = $3, active_session_updated_at = $2, updated_at = $2
			 WHERE id = $1 AND status = $4`,
			p.AttemptID, p.SavedAt, sessionID, model.AttemptStatusInProgress)
		if err != nil {
			return fmt.Errorf("stamp attempt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotInProgress
		}

		if len(p.Answers) == 0 {
			return nil
		}

		// Sorted keys give concurrent writers the same row lock order.
		keys := make([]string, 0, len(p.Answers))
		for k := range p.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = p.Answers[k]
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO answers (attempt_id, question_key, answer_value, created_at, updated_at)
			 SELECT $1, t.question_key, t.answer_value, $4, $4
			 FROM UNNEST($2::text[], $3::text[]) AS t(question_key, answer_value)
			 ON CONFLICT (attempt_id, question_key) DO UPDATE
			 SET answer_value = EXCLUDED.answer_value, updated_at = EXCLUDED.updated_at`,
			p.AttemptID, keys, values, p.SavedAt)
		if err != nil {
			return fmt.Errorf("upsert answers: %w", err)
		}
		return nil
	})
}

// MarkSubmitted flips an in-progress attempt to submitted. It reports false
// when the attempt was already submitted.
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, id int64, completedAt time.Time, durationSeconds int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $2, completed_at = $3, duration_seconds = $4, updated_at = $3
		 WHERE id = $1 AND status = $5`,
		id, model.AttemptStatusSubmitted, completedAt, durationSeconds, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateNotes replaces the admin notes.
func (r *AttemptRepository) UpdateNotes(ctx context.Context, id int64, notes string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET admin_notes = $2, updated_at = NOW() WHERE id = $1`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetReviewedAt sets or clears reviewed_at.
func (r *AttemptRepository) SetReviewedAt(ctx context.Context, id int64, reviewedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET reviewed_at = $2, updated_at = NOW() WHERE id = $1`, id, reviewedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// List returns one page of attempts matching q plus the filtered row count.
func (r *AttemptRepository) List(ctx context.Context, q model.AttemptQuery) ([]model.Attempt, int64, error) {
	where, args := listFilter(q)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attempts"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + attemptColumns + ` FROM attempts` + where +
		` ORDER BY ` + orderClause(q.Sort, q.Dir) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, model.AttemptsPerPage, q.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	attempts, err := collectAttempts(rows)
	if err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

// Stats counts attempts over the whole table.
func (r *AttemptRepository) Stats(ctx context.Context) (model.AttemptStats, error) {
	var s model.AttemptStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COUNT(*) FILTER (WHERE status = $2)
		 FROM attempts`,
		model.AttemptStatusSubmitted, model.AttemptStatusInProgress,
	).Scan(&s.Total, &s.Submitted, &s.InProgress)
	return s, err
}

// ListSubmittedPage returns up to limit submitted attempts ordered by
// completed_at descending, starting after the cursor (nil for the first page).
func (r *AttemptRepository) ListSubmittedPage(ctx context.Context, after *ExportCursor, limit int) ([]model.Attempt, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = r.pool.Query(ctx,
			`SELECT `+attemptColumns+` FROM attempts
			 WHERE status = $1
			 ORDER BY completed_at DESC, id DESC
			 LIMIT $2`,
			model.AttemptStatusSubmitted, limit)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+attemptColumns+` FROM attempts
			 WHERE status = $1 AND (completed_at, id) < ($2, $3)
			 ORDER BY completed_at DESC, id DESC
			 LIMIT $4`,
			model.AttemptStatusSubmitted, after.CompletedAt, after.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// listFilter builds the WHERE clause for the admin list. Search input is
// bound as a parameter with LIKE metacharacters escaped.
func listFilter(q model.AttemptQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if s := strings.TrimSpace(q.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(candidate_name ILIKE $%d OR candidate_email ILIKE $%d)", n, n))
	}

	if q.Status != "" {
		args = append(args, q.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike escapes the LIKE metacharacters using PostgreSQL's default
// escape character.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// orderClause maps the allow-listed sort column to SQL. Only the literal
// strings below can ever reach the query.
func orderClause(col model.SortColumn, dir model.SortDirection) string {
	column := "started_at"
	switch col {
	case model.SortByCandidateName:
		column = "candidate_name"
	case model.SortByStatus:
		column = "status"
	case model.SortByCompletedAt:
		column = "completed_at"
	}

	direction := "DESC"
	if dir == model.SortAsc {
		direction = "ASC"
	}

	// completed_at keeps Postgres null ordering: in-progress rows lead a
	// descending sort and trail an ascending one.
	return column + " " + direction + ", id " + direction
}
