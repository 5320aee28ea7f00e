package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/model"
	"golang.org/x/sync/errgroup"
)

// AdminService handles the review side: listing, detail, notes and the
// reviewed flag.
type AdminService struct {
	attempts AttemptStore
	answers  AnswerStore
	catalog  *catalog.Catalog
	log      zerolog.Logger
	now      func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(attempts AttemptStore, answers AnswerStore, cat *catalog.Catalog, log zerolog.Logger) *AdminService {
	return &AdminService{
		attempts: attempts,
		answers:  answers,
		catalog:  cat,
		log:      log.With().Str("component", "admin_service").Logger(),
		now:      time.Now,
	}
}

// AttemptDetail is one attempt with every catalog answer filled in.
type AttemptDetail struct {
	Attempt *model.Attempt    `json:"attempt"`
	Answers map[string]string `json:"answers"`
}

// ListAttempts returns one filtered page plus whole-table counts. The page
// and the counts are fetched concurrently.
func (s *AdminService) ListAttempts(ctx context.Context, q model.AttemptQuery) (*model.AttemptPage, error) {
	page := &model.AttemptPage{Query: q}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		attempts, total, err := s.attempts.List(gctx, q)
		if err != nil {
			return fmt.Errorf("list attempts: %w", err)
		}
		page.Attempts = attempts
		page.TotalItems = total
		return nil
	})
	g.Go(func() error {
		stats, err := s.attempts.Stats(gctx)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		page.Stats = stats
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if page.Attempts == nil {
		page.Attempts = []model.Attempt{}
	}
	page.TotalPages = int((page.TotalItems + model.AttemptsPerPage - 1) / model.AttemptsPerPage)
	return page, nil
}

// GetAttempt loads a single attempt for review.
func (s *AdminService) GetAttempt(ctx context.Context, id int64) (*AttemptDetail, error) {
	a, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	stored, err := s.answers.MapByAttempt(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return &AttemptDetail{Attempt: a, Answers: s.catalog.Fill(stored)}, nil
}

// UpdateNotes replaces the admin notes of an attempt.
func (s *AdminService) UpdateNotes(ctx context.Context, id int64, notes string) error {
	if err := s.attempts.UpdateNotes(ctx, id, notes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("update notes: %w", err)
	}
	return nil
}

// SetReviewed stamps reviewed_at with the current time, or clears it.
func (s *AdminService) SetReviewed(ctx context.Context, id int64, reviewed bool) error {
	var at *time.Time
	if reviewed {
		now := s.now()
		at = &now
	}
	if err := s.attempts.SetReviewedAt(ctx, id, at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("set reviewed: %w", err)
	}

	s.log.Info().Int64("attempt_id", id).Bool("reviewed", reviewed).Msg("Review flag updated")
	return nil
}
