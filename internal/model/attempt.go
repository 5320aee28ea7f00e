package model

import (
	"time"
)

// AttemptStatus enumerates attempt states. The only transition is
// in_progress → submitted.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
)

// TimestampLayout is the ISO-8601 profile used in exports. Values are
// formatted in UTC, so the offset is always +00:00.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// Attempt represents one candidate's run through the assessment.
type Attempt struct {
	ID                     int64         `json:"id"`
	Token                  string        `json:"-"`
	AssessmentVersion      string        `json:"assessment_version"`
	CandidateName          string        `json:"candidate_name"`
	CandidateEmail         string        `json:"candidate_email"`
	Status                 AttemptStatus `json:"status"`
	StartedAt              time.Time     `json:"started_at"`
	CompletedAt            *time.Time    `json:"completed_at,omitempty"`
	DurationSeconds        *int          `json:"duration_seconds,omitempty"`
	LastActivityAt         *time.Time    `json:"last_activity_at,omitempty"`
	ActiveSessionID        *string       `json:"-"`
	ActiveSessionUpdatedAt *time.Time    `json:"-"`
	ReviewedAt             *time.Time    `json:"reviewed_at,omitempty"`
	AdminNotes             *string       `json:"admin_notes,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

func (a *Attempt) IsSubmitted() bool { return a.Status == AttemptStatusSubmitted }

func (a *Attempt) IsInProgress() bool { return a.Status == AttemptStatusInProgress }

// Notes returns the admin notes or "" when none were written.
func (a *Attempt) Notes() string {
	if a.AdminNotes == nil {
		return ""
	}
	return *a.AdminNotes
}

// Duration returns the stored duration, or 0 while in progress.
func (a *Attempt) Duration() time.Duration {
	if a.DurationSeconds == nil {
		return 0
	}
	return time.Duration(*a.DurationSeconds) * time.Second
}

// Progress is one autosave write: the filtered answers plus the session
// stamp recorded on the attempt.
type Progress struct {
	AttemptID int64
	Answers   map[string]string
	SessionID string
	SavedAt   time.Time
}

// AutosaveResult is returned to the runner after each autosave tick.
type AutosaveResult struct {
	SavedAt         time.Time `json:"saved_at"`
	MultiTabWarning bool      `json:"multi_tab_warning"`
	// Frozen is set when the attempt was already submitted and nothing was written.
	Frozen bool `json:"frozen,omitempty"`
}

// Submission is one exported attempt together with its answers.
type Submission struct {
	Attempt Attempt
	Answers map[string]string
}

// StartAttemptRequest is the start form payload.
type StartAttemptRequest struct {
	Name  string `form:"name" json:"name" binding:"required,max=200"`
	Email string `form:"email" json:"email" binding:"required,email,max=254"`
}

// AutosaveRequest is the periodic autosave payload sent by the runner.
type AutosaveRequest struct {
	Answers   map[string]string `json:"answers"`
	SessionID string            `json:"session_id" binding:"max=64"`
}

// SubmitRequest is the JSON submit payload.
type SubmitRequest struct {
	Answers   map[string]string `json:"answers"`
	SessionID string            `json:"session_id" binding:"max=64"`
}

// UpdateNotesRequest is the admin notes form payload.
type UpdateNotesRequest struct {
	Notes string `form:"notes" json:"notes" binding:"max=20000"`
}

// ReviewRequest toggles the reviewed flag.
type ReviewRequest struct {
	Reviewed bool `form:"reviewed" json:"reviewed"`
}
