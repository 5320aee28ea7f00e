// Package servicetest provides an in-memory implementation of the service
// stores for tests.
package servicetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/stemsi/assessment-runner/internal/repository"
)

// MemoryStore is an in-memory service.AttemptStore and service.AnswerStore.
// It follows the repository semantics: missing rows are pgx.ErrNoRows and
// progress on a submitted attempt is repository.ErrNotInProgress.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	attempts map[int64]*model.Attempt
	answers  map[int64]map[string]string

	// SaveErr, when set, is returned by SaveProgress.
	SaveErr error

	SaveCalls   int
	SubmitCalls int
	PageCalls   int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[int64]*model.Attempt),
		answers:  make(map[int64]map[string]string),
	}
}

func (f *MemoryStore) Create(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = f.nextID
	a.CreatedAt = a.StartedAt
	a.UpdatedAt = a.StartedAt
	cp := *a
	f.attempts[a.ID] = &cp
	return nil
}

func (f *MemoryStore) GetByToken(_ context.Context, token string) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.Token == token {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *MemoryStore) GetByID(_ context.Context, id int64) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *MemoryStore) SaveProgress(_ context.Context, p *model.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SaveCalls++
	if f.SaveErr != nil {
		return f.SaveErr
	}
	a, ok := f.attempts[p.AttemptID]
	if !ok || !a.IsInProgress() {
		return repository.ErrNotInProgress
	}

	saved := p.SavedAt
	a.LastActivityAt = &saved
	a.ActiveSessionUpdatedAt = &saved
	a.ActiveSessionID = nil
	if p.SessionID != "" {
		sid := p.SessionID
		a.ActiveSessionID = &sid
	}

	m, ok := f.answers[p.AttemptID]
	if !ok {
		m = make(map[string]string)
		f.answers[p.AttemptID] = m
	}
	for k, v := range p.Answers {
		m[k] = v
	}
	return nil
}

func (f *MemoryStore) MarkSubmitted(_ context.Context, id int64, completedAt time.Time, durationSeconds int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SubmitCalls++
	a, ok := f.attempts[id]
	if !ok || !a.IsInProgress() {
		return false, nil
	}
	a.Status = model.AttemptStatusSubmitted
	a.CompletedAt = &completedAt
	a.DurationSeconds = &durationSeconds
	return true, nil
}

func (f *MemoryStore) UpdateNotes(_ context.Context, id int64, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.AdminNotes = &notes
	return nil
}

func (f *MemoryStore) SetReviewedAt(_ context.Context, id int64, reviewedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.ReviewedAt = reviewedAt
	return nil
}

func (f *MemoryStore) List(_ context.Context, q model.AttemptQuery) ([]model.Attempt, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []model.Attempt
	for _, a := range f.attempts {
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.CandidateName), search) &&
			!strings.Contains(strings.ToLower(a.CandidateEmail), search) {
			continue
		}
		matched = append(matched, *a)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := int64(len(matched))
	start := min(q.Offset(), len(matched))
	end := min(start+model.AttemptsPerPage, len(matched))
	return matched[start:end], total, nil
}

func (f *MemoryStore) Stats(_ context.Context) (model.AttemptStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s model.AttemptStats
	for _, a := range f.attempts {
		s.Total++
		if a.IsSubmitted() {
			s.Submitted++
		} else {
			s.InProgress++
		}
	}
	return s, nil
}

func (f *MemoryStore) ListSubmittedPage(_ context.Context, after *repository.ExportCursor, limit int) ([]model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PageCalls++

	var subs []model.Attempt
	for _, a := range f.attempts {
		if a.IsSubmitted() {
			subs = append(subs, *a)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CompletedAt.Equal(*subs[j].CompletedAt) {
			return subs[i].CompletedAt.After(*subs[j].CompletedAt)
		}
		return subs[i].ID > subs[j].ID
	})

	var page []model.Attempt
	for _, a := range subs {
		if after != nil {
			if a.CompletedAt.After(after.CompletedAt) ||
				(a.CompletedAt.Equal(after.CompletedAt) && a.ID >= after.ID) {
				continue
			}
		}
		page = append(page, a)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *MemoryStore) MapByAttempt(_ context.Context, attemptID int64) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for k, v := range f.answers[attemptID] {
		out[k] = v
	}
	return out, nil
}

func (f *MemoryStore) MapByAttempts(_ context.Context, attemptIDs []int64) (map[int64]map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]map[string]string)
	for _, id := range attemptIDs {
		if m, ok := f.answers[id]; ok {
			cp := make(map[string]string, len(m))
			for k, v := range m {
				cp[k] = v
			}
			out[id] = cp
		}
	}
	return out, nil
}

// Stored returns the persisted copy of an attempt.
func (f *MemoryStore) Stored(id int64) model.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.attempts[id]
}

// Count returns the number of stored attempts.
func (f *MemoryStore) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts at 2025-12-11 09:00 UTC.
func NewClock() *Clock {
	return &Clock{t: time.Date(2025, 12, 11, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
