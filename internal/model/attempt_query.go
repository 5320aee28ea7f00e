package model

import "math"

// AttemptsPerPage is the fixed admin list page size.
const AttemptsPerPage = 20

// MaxPage is the largest page whose Offset still fits in an int.
const MaxPage = math.MaxInt / AttemptsPerPage

// SortColumn is one of the columns the admin list may be ordered by.
type SortColumn string

const (
	SortByCandidateName SortColumn = "candidate_name"
	SortByStatus        SortColumn = "status"
	SortByStartedAt     SortColumn = "started_at"
	SortByCompletedAt   SortColumn = "completed_at"
)

// ParseSortColumn maps user input onto the allow-list. Anything unknown
// becomes started_at.
func ParseSortColumn(s string) SortColumn {
	switch SortColumn(s) {
	case SortByCandidateName, SortByStatus, SortByStartedAt, SortByCompletedAt:
		return SortColumn(s)
	default:
		return SortByStartedAt
	}
}

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection returns asc only for "asc"; everything else is desc.
func ParseSortDirection(s string) SortDirection {
	if SortDirection(s) == SortAsc {
		return SortAsc
	}
	return SortDesc
}

// ParseStatusFilter returns the status to filter on, or "" (no filter) for
// empty or unrecognised input.
func ParseStatusFilter(s string) AttemptStatus {
	switch AttemptStatus(s) {
	case AttemptStatusInProgress, AttemptStatusSubmitted:
		return AttemptStatus(s)
	default:
		return ""
	}
}

// AttemptQuery is a normalised admin list request.
type AttemptQuery struct {
	Search string        `json:"search"`
	Status AttemptStatus `json:"status"`
	Sort   SortColumn    `json:"sort"`
	Dir    SortDirection `json:"dir"`
	Page   int           `json:"page"`
}

// NewAttemptQuery validates raw query-string values. It never fails:
// invalid values fall back to defaults.
func NewAttemptQuery(search, status, sort, dir string, page int) AttemptQuery {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	return AttemptQuery{
		Search: search,
		Status: ParseStatusFilter(status),
		Sort:   ParseSortColumn(sort),
		Dir:    ParseSortDirection(dir),
		Page:   page,
	}
}

// Offset is the row offset of the requested page.
func (q AttemptQuery) Offset() int {
	return (q.Page - 1) * AttemptsPerPage
}

// AttemptStats are whole-table counts, independent of any filter.
type AttemptStats struct {
	Total      int64 `json:"total"`
	Submitted  int64 `json:"submitted"`
	InProgress int64 `json:"in_progress"`
}

// AttemptPage is one page of the admin list.
type AttemptPage struct {
	Attempts   []Attempt    `json:"attempts"`
	Query      AttemptQuery `json:"query"`
	TotalItems int64        `json:"total_items"`
	TotalPages int          `json:"total_pages"`
	Stats      AttemptStats `json:"stats"`
}
