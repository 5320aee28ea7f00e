package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/stemsi/assessment-runner/internal/repository"
)

// AttemptStore is the attempt persistence used by the services.
// *repository.AttemptRepository implements it.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByToken(ctx context.Context, token string) (*model.Attempt, error)
	GetByID(ctx context.Context, id int64) (*model.Attempt, error)
	SaveProgress(ctx context.Context, p *model.Progress) error
	MarkSubmitted(ctx context.Context, id int64, completedAt time.Time, durationSeconds int) (bool, error)
	UpdateNotes(ctx context.Context, id int64, notes string) error
	SetReviewedAt(ctx context.Context, id int64, reviewedAt *time.Time) error
	List(ctx context.Context, q model.AttemptQuery) ([]model.Attempt, int64, error)
	Stats(ctx context.Context) (model.AttemptStats, error)
	ListSubmittedPage(ctx context.Context, after *repository.ExportCursor, limit int) ([]model.Attempt, error)
}

// AnswerStore reads stored answers. *repository.AnswerRepository implements it.
type AnswerStore interface {
	MapByAttempt(ctx context.Context, attemptID int64) (map[string]string, error)
	MapByAttempts(ctx context.Context, attemptIDs []int64) (map[int64]map[string]string, error)
}

var (
	_ AttemptStore = (*repository.AttemptRepository)(nil)
	_ AnswerStore  = (*repository.AnswerRepository)(nil)
)

// ErrAttemptNotFound is returned when a token or id matches no attempt.
var ErrAttemptNotFound = errors.New("attempt not found")

// RequiredMessage is reported for every blank required question on submit.
const RequiredMessage = "This question is required."

// ValidationErrors maps a field or question key to its message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}
