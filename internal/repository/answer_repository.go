package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerRepository handles answer data access. Writes go through
// AttemptRepository.SaveProgress so they share a transaction with the
// attempt stamp.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// MapByAttempt returns question_key → answer_value for one attempt. NULL
// values come back as "".
func (r *AnswerRepository) MapByAttempt(ctx context.Context, attemptID int64) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_key, COALESCE(answer_value, '')
		 FROM answers
		 WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		answers[key] = value
	}
	return answers, rows.Err()
}

// MapByAttempts loads answers for a batch of attempts in one query.
func (r *AnswerRepository) MapByAttempts(ctx context.Context, attemptIDs []int64) (map[int64]map[string]string, error) {
	out := make(map[int64]map[string]string, len(attemptIDs))
	if len(attemptIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_key, COALESCE(answer_value, '')
		 FROM answers
		 WHERE attempt_id = ANY($1)`, attemptIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         int64
			key, value string
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return nil, err
		}
		m, ok := out[id]
		if !ok {
			m = make(map[string]string)
			out[id] = m
		}
		m[key] = value
	}
	return out, rows.Err()
}
