package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
)

// UsageStore implements ports.UsageStore and ports.AtomicAppender using SQLite.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage ledger.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

var (
	_ ports.UsageStore     = (*UsageStore)(nil)
	_ ports.AtomicAppender = (*UsageStore)(nil)
)

const insertEvent = `
	INSERT INTO usage_events (
		id, organization_id, user_id, session_id, event_type, event_data, credits_consumed, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const sumCredits = `
	SELECT COALESCE(SUM(credits_consumed), 0)
	FROM usage_events
	WHERE organization_id = ? AND created_at >= ? AND created_at <= ?
`

const selectEvents = `
	SELECT id, organization_id, user_id, session_id, event_type, event_data, credits_consumed, created_at
	FROM usage_events
`

// execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Append stores a new event.
func (s *UsageStore) Append(ctx context.Context, e usage.Event) error {
	return appendEvent(ctx, s.db, e)
}

func appendEvent(ctx context.Context, x execer, e usage.Event) error {
	data, err := json.Marshal(e.EventData)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	var session sql.NullInt64
	if e.SessionID != nil {
		session = sql.NullInt64{Int64: *e.SessionID, Valid: true}
	}

	_, err = x.ExecContext(ctx, insertEvent,
		e.ID, e.OrganizationID, e.UserID, session, e.EventType, string(data), e.CreditsConsumed, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

// AppendWithinLimit checks and appends inside one write transaction.
// BEGIN IMMEDIATE takes the database write lock up front, so concurrent
// callers serialize on the check.
func (s *UsageStore) AppendWithinLimit(ctx context.Context, e usage.Event, start, end time.Time, limit int64) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return 0, fmt.Errorf("begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var used int64
	if err := conn.QueryRowContext(ctx, sumCredits, e.OrganizationID, formatTime(start), formatTime(end)).Scan(&used); err != nil {
		return 0, fmt.Errorf("sum credits: %w", err)
	}
	if limit >= 0 && used+e.CreditsConsumed > limit {
		return used, ports.ErrLimitExceeded
	}

	if err := appendEvent(ctx, conn, e); err != nil {
		return used, err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return used, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return used, nil
}

// SumCredits totals an organization's credits within [start, end].
func (s *UsageStore) SumCredits(ctx context.Context, orgID string, start, end time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, sumCredits, orgID, formatTime(start), formatTime(end)).Scan(&total)
	return total, err
}

// ListEvents returns an organization's events within [start, end], newest first.
func (s *UsageStore) ListEvents(ctx context.Context, orgID string, start, end time.Time) ([]usage.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+`
		WHERE organization_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC, rowid DESC
	`, orgID, formatTime(start), formatTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Query returns one page of matching events and a summary of all matches.
func (s *UsageStore) Query(ctx context.Context, q usage.Query) (usage.Page, error) {
	q = q.Normalize()
	where, args := buildWhere(q)

	page := usage.Page{Page: q.Page, Limit: q.Limit}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(credits_consumed), 0), COUNT(*), COUNT(DISTINCT user_id)
		FROM usage_events`+where, args...,
	).Scan(&page.Summary.TotalCredits, &page.Summary.TotalEvents, &page.Summary.UniqueUsers)
	if err != nil {
		return usage.Page{}, fmt.Errorf("summarize: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, selectEvents+where+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, append(args, q.Limit, q.Offset())...)
	if err != nil {
		return usage.Page{}, err
	}
	defer rows.Close()

	page.Events, err = scanEvents(rows)
	if err != nil {
		return usage.Page{}, err
	}
	return page, nil
}

func buildWhere(q usage.Query) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}

	if q.OrganizationID != "" {
		add("organization_id = ?", q.OrganizationID)
	}
	if q.EventType != "" {
		add("event_type = ?", q.EventType)
	}
	if len(q.EventTypes) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(q.EventTypes)), ",")
		vals := make([]any, len(q.EventTypes))
		for i, t := range q.EventTypes {
			vals[i] = t
		}
		add("event_type IN ("+marks+")", vals...)
	}
	if q.UserID != "" {
		add("user_id = ?", q.UserID)
	}
	if q.SessionID != nil {
		add("session_id = ?", *q.SessionID)
	}
	if !q.Start.IsZero() {
		add("created_at >= ?", formatTime(q.Start))
	}
	if !q.End.IsZero() {
		add("created_at <= ?", formatTime(q.End))
	}
	if q.MinCredits != nil {
		add("credits_consumed >= ?", *q.MinCredits)
	}
	if q.MaxCredits != nil {
		add("credits_consumed <= ?", *q.MaxCredits)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEvents(rows *sql.Rows) ([]usage.Event, error) {
	events := make([]usage.Event, 0)
	for rows.Next() {
		var (
			e         usage.Event
			session   sql.NullInt64
			data      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.UserID, &session, &e.EventType, &data, &e.CreditsConsumed, &createdAt); err != nil {
			return nil, err
		}
		if session.Valid {
			id := session.Int64
			e.SessionID = &id
		}
		e.EventData = event.Data{}
		if data != "" {
			if err := json.Unmarshal([]byte(data), &e.EventData); err != nil {
				return nil, fmt.Errorf("decode event data for %s: %w", e.ID, err)
			}
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", e.ID, err)
		}
		e.CreatedAt = t
		events = append(events, e)
	}
	return events, rows.Err()
}

// scanErr maps sql.ErrNoRows to ports.ErrNotFound.
func scanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ErrNotFound
	}
	return err
}
