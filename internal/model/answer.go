package model

import "time"

// Answer is a candidate's response to one catalog question. At most one row
// exists per (attempt, question_key).
type Answer struct {
	ID          int64     `json:"id"`
	AttemptID   int64     `json:"attempt_id"`
	QuestionKey string    `json:"question_key"`
	AnswerValue *string   `json:"answer_value"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
