package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
)

// OrganizationStore implements ports.OrganizationStore using SQLite.
type OrganizationStore struct {
	db *DB
}

// NewOrganizationStore creates a new SQLite organization store.
func NewOrganizationStore(db *DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

var _ ports.OrganizationStore = (*OrganizationStore)(nil)

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, id string) (ports.Organization, error) {
	var (
		o         ports.Organization
		limits    string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, plan_type, usage_limits, created_at
		FROM organizations WHERE id = ?
	`, id).Scan(&o.ID, &o.Name, &o.PlanType, &limits, &createdAt)
	if err != nil {
		return ports.Organization{}, scanErr(err)
	}

	if limits != "" && limits != "{}" {
		if err := json.Unmarshal([]byte(limits), &o.UsageLimits); err != nil {
			return ports.Organization{}, fmt.Errorf("decode usage limits for %s: %w", id, err)
		}
	}
	o.CreatedAt, _ = parseTime(createdAt)
	return o, nil
}

// Create stores a new organization.
func (s *OrganizationStore) Create(ctx context.Context, o ports.Organization) error {
	limits := []byte("{}")
	if len(o.UsageLimits) > 0 {
		var err error
		if limits, err = json.Marshal(o.UsageLimits); err != nil {
			return fmt.Errorf("encode usage limits: %w", err)
		}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, plan_type, usage_limits, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, o.ID, o.Name, o.PlanType, string(limits), formatTime(o.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ports.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UserStore implements ports.UserStore using SQLite.
type UserStore struct {
	db *DB
}

// NewUserStore creates a new SQLite user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

var _ ports.UserStore = (*UserStore)(nil)

// Lookup returns the known users among ids.
func (s *UserStore) Lookup(ctx context.Context, ids []string) (map[string]usage.User, error) {
	result := make(map[string]usage.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx, `SELECT id, full_name, email FROM users WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u usage.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email); err != nil {
			return nil, err
		}
		result[u.ID] = u
	}
	return result, rows.Err()
}

// Upsert creates or replaces a user.
func (s *UserStore) Upsert(ctx context.Context, u usage.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			updated_at = excluded.updated_at
	`, u.ID, u.FullName, u.Email, formatTime(time.Now()))
	return err
}
