package websocket

import "time"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is every message a runner sends. Autosave and submit carry
// the full in-memory answer set.
type RequestPayload struct {
	Action    Action            `json:"action"`
	Answers   map[string]string `json:"answers,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventFrozen    Event = "frozen"
	EventSubmitted Event = "submitted"
	EventInvalid   Event = "invalid"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event           Event     `json:"event"`
	SavedAt         time.Time `json:"saved_at"`
	MultiTabWarning bool      `json:"multi_tab_warning"`
}

type SubmittedResponse struct {
	Event           Event `json:"event"`
	DurationSeconds int   `json:"duration_seconds"`
}

type InvalidResponse struct {
	Event  Event             `json:"event"`
	Errors map[string]string `json:"errors"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// EventResponse is an event with no payload (pong, frozen).
type EventResponse struct {
	Event Event `json:"event"`
}
