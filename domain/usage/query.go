package usage

import "time"

// Page size bounds for history queries.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Query filters the event ledger of one organization.
// Zero values mean "no filter".
type Query struct {
	OrganizationID string
	EventType      string
	EventTypes     []string // any of, used for category filters
	UserID         string
	SessionID      *int64
	Start          time.Time
	End            time.Time
	MinCredits     *int64
	MaxCredits     *int64
	Page           int
	Limit          int
}

// Normalize clamps paging to valid values.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

// Offset returns the number of rows skipped before the current page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Matches reports whether e passes every filter of q (paging excluded).
func (q Query) Matches(e Event) bool {
	if q.OrganizationID != "" && e.OrganizationID != q.OrganizationID {
		return false
	}
	if q.EventType != "" && e.EventType != q.EventType {
		return false
	}
	if len(q.EventTypes) > 0 && !contains(q.EventTypes, e.EventType) {
		return false
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.SessionID != nil && (e.SessionID == nil || *e.SessionID != *q.SessionID) {
		return false
	}
	if !q.Start.IsZero() && e.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.CreatedAt.After(q.End) {
		return false
	}
	if q.MinCredits != nil && e.CreditsConsumed < *q.MinCredits {
		return false
	}
	if q.MaxCredits != nil && e.CreditsConsumed > *q.MaxCredits {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Summary totals the whole filtered set of a history query.
type Summary struct {
	TotalCredits int64 `json:"totalCredits"`
	TotalEvents  int64 `json:"totalEvents"`
	UniqueUsers  int64 `json:"uniqueUsers"`
}

// Summarize totals events.
// This is a PURE function.
func Summarize(events []Event) Summary {
	users := make(map[string]struct{})
	var s Summary
	for _, e := range events {
		s.TotalCredits += e.CreditsConsumed
		s.TotalEvents++
		users[e.UserID] = struct{}{}
	}
	s.UniqueUsers = int64(len(users))
	return s
}

// Page is one page of a history query, newest first.
type Page struct {
	Events  []Event
	Page    int
	Limit   int
	Summary Summary
}

// TotalPages returns the number of pages in the filtered set.
func (p Page) TotalPages() int {
	if p.Limit <= 0 || p.Summary.TotalEvents == 0 {
		return 0
	}
	return int((p.Summary.TotalEvents + int64(p.Limit) - 1) / int64(p.Limit))
}
