package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/stemsi/assessment-runner/internal/repository"
	"github.com/stemsi/assessment-runner/internal/validator"
)

const (
	// tokenBytes of entropy, rendered as 2*tokenBytes hex characters.
	tokenBytes = 32

	// MultiTabWindow is how long another session's stamp counts as live.
	MultiTabWindow = 60 * time.Second
)

// AttemptService handles the candidate side of an attempt: start, autosave
// and submit.
type AttemptService struct {
	attempts AttemptStore
	answers  AnswerStore
	catalog  *catalog.Catalog
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	answers AnswerStore,
	cat *catalog.Catalog,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		answers:  answers,
		catalog:  cat,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

// RunnerState is everything the runner page needs to resume an attempt.
type RunnerState struct {
	Attempt        *model.Attempt
	Answers        map[string]string
	AnsweredCount  int
	RequiredCount  int
	ElapsedSeconds int
}

// Start validates the candidate details and creates a fresh attempt.
func (s *AttemptService) Start(ctx context.Context, req model.StartAttemptRequest) (*model.Attempt, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if fields := validator.Validate(&req); fields != nil {
		return nil, ValidationErrors(fields)
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	a := &model.Attempt{
		Token:             token,
		AssessmentVersion: s.catalog.Version(),
		CandidateName:     req.Name,
		CandidateEmail:    req.Email,
		Status:            model.AttemptStatusInProgress,
		StartedAt:         s.now(),
	}
	if err := s.attempts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Int64("attempt_id", a.ID).
		Str("version", a.AssessmentVersion).
		Msg("Attempt started")
	return a, nil
}

// GetByToken loads an attempt by its candidate token.
func (s *AttemptService) GetByToken(ctx context.Context, token string) (*model.Attempt, error) {
	a, err := s.attempts.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// Runner loads an attempt with every catalog key pre-filled from storage.
func (s *AttemptService) Runner(ctx context.Context, token string) (*RunnerState, error) {
	a, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	stored, err := s.answers.MapByAttempt(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	answers := s.catalog.Fill(stored)

	end := s.now()
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	elapsed := int(end.Sub(a.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	return &RunnerState{
		Attempt:        a,
		Answers:        answers,
		AnsweredCount:  s.catalog.AnsweredCount(answers),
		RequiredCount:  s.catalog.RequiredCount(),
		ElapsedSeconds: elapsed,
	}, nil
}

// Autosave persists the known answers of an in-progress attempt and stamps
// the caller's session. Submitted attempts are left untouched and reported
// as frozen.
func (s *AttemptService) Autosave(ctx context.Context, a *model.Attempt, answers map[string]string, sessionID string) (*model.AutosaveResult, error) {
	if a.IsSubmitted() {
		return &model.AutosaveResult{Frozen: true}, nil
	}

	now := s.now()
	warning := multiTabWarning(a, sessionID, now)

	p := &model.Progress{
		AttemptID: a.ID,
		Answers:   s.catalog.Filter(answers),
		SessionID: sessionID,
		SavedAt:   now,
	}
	if err := s.attempts.SaveProgress(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotInProgress) {
			return &model.AutosaveResult{Frozen: true}, nil
		}
		return nil, fmt.Errorf("save progress: %w", err)
	}

	a.LastActivityAt = &now
	a.ActiveSessionUpdatedAt = &now
	a.ActiveSessionID = nil
	if sessionID != "" {
		a.ActiveSessionID = &sessionID
	}

	if warning {
		s.log.Info().Int64("attempt_id", a.ID).Msg("Multi-tab editing detected")
	}
	return &model.AutosaveResult{SavedAt: now, MultiTabWarning: warning}, nil
}

// AutosaveByToken is Autosave for callers that only hold the token.
func (s *AttemptService) AutosaveByToken(ctx context.Context, token string, answers map[string]string, sessionID string) (*model.AutosaveResult, error) {
	a, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Autosave(ctx, a, answers, sessionID)
}

// Submit finalises an attempt. Every blank required question is reported
// at once as ValidationErrors and nothing is written. Submitting an already
// submitted attempt returns it unchanged.
func (s *AttemptService) Submit(ctx context.Context, a *model.Attempt, answers map[string]string, sessionID string) (*model.Attempt, error) {
	if a.IsSubmitted() {
		return a, nil
	}

	if missing := s.catalog.MissingRequired(answers); len(missing) > 0 {
		errs := make(ValidationErrors, len(missing))
		for _, k := range missing {
			errs[k] = RequiredMessage
		}
		return nil, errs
	}

	res, err := s.Autosave(ctx, a, answers, sessionID)
	if err != nil {
		return nil, err
	}
	if res.Frozen {
		return s.reload(ctx, a)
	}

	completedAt := s.now()
	duration := int(completedAt.Sub(a.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	ok, err := s.attempts.MarkSubmitted(ctx, a.ID, completedAt, duration)
	if err != nil {
		return nil, fmt.Errorf("mark submitted: %w", err)
	}
	if !ok {
		// Another request submitted first; its values stand.
		return s.reload(ctx, a)
	}

	a.Status = model.AttemptStatusSubmitted
	a.CompletedAt = &completedAt
	a.DurationSeconds = &duration

	s.log.Info().
		Int64("attempt_id", a.ID).
		Int("duration_seconds", duration).
		Msg("Attempt submitted")
	return a, nil
}

// SubmitByToken is Submit for callers that only hold the token.
func (s *AttemptService) SubmitByToken(ctx context.Context, token string, answers map[string]string, sessionID string) (*model.Attempt, error) {
	a, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, a, answers, sessionID)
}

func (s *AttemptService) reload(ctx context.Context, a *model.Attempt) (*model.Attempt, error) {
	fresh, err := s.GetByToken(ctx, a.Token)
	if err != nil {
		return nil, err
	}
	*a = *fresh
	return a, nil
}

// multiTabWarning must be evaluated against the stamp left by the previous
// writer, before this call records its own.
func multiTabWarning(a *model.Attempt, sessionID string, now time.Time) bool {
	if sessionID == "" || a.ActiveSessionID == nil || a.ActiveSessionUpdatedAt == nil {
		return false
	}
	if *a.ActiveSessionID == sessionID {
		return false
	}
	return now.Sub(*a.ActiveSessionUpdatedAt) < MultiTabWindow
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
