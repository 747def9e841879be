package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageStore implements ports.UsageStore and ports.AtomicAppender with GORM.
type UsageStore struct {
	db *gorm.DB
}

// NewUsageStore creates a new GORM usage ledger.
func NewUsageStore(db *gorm.DB) *UsageStore {
	return &UsageStore{db: db}
}

var (
	_ ports.UsageStore     = (*UsageStore)(nil)
	_ ports.AtomicAppender = (*UsageStore)(nil)
)

// Append stores a new event.
func (s *UsageStore) Append(ctx context.Context, e usage.Event) error {
	return s.db.WithContext(ctx).Create(UsageEventModelFromDomain(e)).Error
}

// AppendWithinLimit checks and appends inside one transaction. On PostgreSQL
// the transaction holds an advisory lock keyed by organization, so checks for
// the same organization serialize across replicas.
func (s *UsageStore) AppendWithinLimit(ctx context.Context, e usage.Event, start, end time.Time, limit int64) (int64, error) {
	var used int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", e.OrganizationID).Error; err != nil {
				return err
			}
		}

		var err error
		if used, err = sumCredits(tx, e.OrganizationID, start, end); err != nil {
			return err
		}
		if limit >= 0 && used+e.CreditsConsumed > limit {
			return ports.ErrLimitExceeded
		}
		return tx.Create(UsageEventModelFromDomain(e)).Error
	})
	return used, err
}

// SumCredits totals an organization's credits within [start, end].
func (s *UsageStore) SumCredits(ctx context.Context, orgID string, start, end time.Time) (int64, error) {
	return sumCredits(s.db.WithContext(ctx), orgID, start, end)
}

func sumCredits(db *gorm.DB, orgID string, start, end time.Time) (int64, error) {
	var total int64
	err := db.Model(&UsageEventModel{}).
		Select("COALESCE(SUM(credits_consumed), 0)").
		Where("organization_id = ? AND created_at >= ? AND created_at <= ?", orgID, start.UTC(), end.UTC()).
		Scan(&total).Error
	return total, err
}

// newestFirst orders events by time, then by insertion for equal timestamps.
const newestFirst = "created_at DESC, seq DESC"

// ListEvents returns an organization's events within [start, end], newest first.
func (s *UsageStore) ListEvents(ctx context.Context, orgID string, start, end time.Time) ([]usage.Event, error) {
	var models []UsageEventModel
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND created_at >= ? AND created_at <= ?", orgID, start.UTC(), end.UTC()).
		Order(newestFirst).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toEvents(models), nil
}

// Query returns one page of matching events and a summary of all matches.
func (s *UsageStore) Query(ctx context.Context, q usage.Query) (usage.Page, error) {
	q = q.Normalize()
	page := usage.Page{Page: q.Page, Limit: q.Limit}

	var summary struct {
		TotalCredits int64
		TotalEvents  int64
		UniqueUsers  int64
	}
	err := applyQuery(s.db.WithContext(ctx).Model(&UsageEventModel{}), q).
		Select("COALESCE(SUM(credits_consumed), 0) AS total_credits, COUNT(*) AS total_events, COUNT(DISTINCT user_id) AS unique_users").
		Scan(&summary).Error
	if err != nil {
		return usage.Page{}, err
	}
	page.Summary = usage.Summary(summary)

	var models []UsageEventModel
	err = applyQuery(s.db.WithContext(ctx), q).
		Order(newestFirst).
		Limit(q.Limit).
		Offset(q.Offset()).
		Find(&models).Error
	if err != nil {
		return usage.Page{}, err
	}
	page.Events = toEvents(models)
	return page, nil
}

func applyQuery(db *gorm.DB, q usage.Query) *gorm.DB {
	if q.OrganizationID != "" {
		db = db.Where("organization_id = ?", q.OrganizationID)
	}
	if q.EventType != "" {
		db = db.Where("event_type = ?", q.EventType)
	}
	if len(q.EventTypes) > 0 {
		db = db.Where("event_type IN ?", q.EventTypes)
	}
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.SessionID != nil {
		db = db.Where("session_id = ?", *q.SessionID)
	}
	if !q.Start.IsZero() {
		db = db.Where("created_at >= ?", q.Start.UTC())
	}
	if !q.End.IsZero() {
		db = db.Where("created_at <= ?", q.End.UTC())
	}
	if q.MinCredits != nil {
		db = db.Where("credits_consumed >= ?", *q.MinCredits)
	}
	if q.MaxCredits != nil {
		db = db.Where("credits_consumed <= ?", *q.MaxCredits)
	}
	return db
}

func toEvents(models []UsageEventModel) []usage.Event {
	events := make([]usage.Event, len(models))
	for i := range models {
		events[i] = models[i].ToDomain()
	}
	return events
}

// OrganizationStore implements ports.OrganizationStore with GORM.
type OrganizationStore struct {
	db *gorm.DB
}

// NewOrganizationStore creates a new GORM organization store.
func NewOrganizationStore(db *gorm.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

var _ ports.OrganizationStore = (*OrganizationStore)(nil)

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, id string) (ports.Organization, error) {
	var model OrganizationModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Organization{}, ports.ErrNotFound
		}
		return ports.Organization{}, err
	}
	return model.ToDomain(), nil
}

// Create stores a new organization.
func (s *OrganizationStore) Create(ctx context.Context, o ports.Organization) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Create(OrganizationModelFromDomain(o)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ports.ErrAlreadyExists
	}
	return err
}

// UserStore implements ports.UserStore with GORM.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a new GORM user store.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

var _ ports.UserStore = (*UserStore)(nil)

// Lookup returns the known users among ids.
func (s *UserStore) Lookup(ctx context.Context, ids []string) (map[string]usage.User, error) {
	result := make(map[string]usage.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var models []UserModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		result[m.ID] = usage.User{ID: m.ID, FullName: m.FullName, Email: m.Email}
	}
	return result, nil
}

// Upsert creates or replaces a user.
func (s *UserStore) Upsert(ctx context.Context, u usage.User) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&UserModel{ID: u.ID, FullName: u.FullName, Email: u.Email}).Error
}

// EventDefinitionStore implements ports.EventDefinitionStore with GORM.
type EventDefinitionStore struct {
	db *gorm.DB
}

// NewEventDefinitionStore creates a new GORM event catalog store.
func NewEventDefinitionStore(db *gorm.DB) *EventDefinitionStore {
	return &EventDefinitionStore{db: db}
}

var _ ports.EventDefinitionStore = (*EventDefinitionStore)(nil)

// List returns all definitions ordered by event type.
func (s *EventDefinitionStore) List(ctx context.Context) ([]event.Definition, error) {
	var models []EventDefinitionModel
	if err := s.db.WithContext(ctx).Order("event_type").Find(&models).Error; err != nil {
		return nil, err
	}
	defs := make([]event.Definition, len(models))
	for i := range models {
		defs[i] = models[i].ToDomain()
	}
	return defs, nil
}

// Upsert creates or replaces a definition.
func (s *EventDefinitionStore) Upsert(ctx context.Context, d event.Definition) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(EventDefinitionModelFromDomain(d)).Error
}

// Delete removes a definition.
func (s *EventDefinitionStore) Delete(ctx context.Context, eventType string) error {
	res := s.db.WithContext(ctx).Delete(&EventDefinitionModel{}, "event_type = ?", eventType)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// PlanDefinitionStore implements ports.PlanDefinitionStore with GORM.
type PlanDefinitionStore struct {
	db *gorm.DB
}

// NewPlanDefinitionStore creates a new GORM plan catalog store.
func NewPlanDefinitionStore(db *gorm.DB) *PlanDefinitionStore {
	return &PlanDefinitionStore{db: db}
}

var _ ports.PlanDefinitionStore = (*PlanDefinitionStore)(nil)

// List returns all plans ordered by monthly price.
func (s *PlanDefinitionStore) List(ctx context.Context) ([]plan.Definition, error) {
	var models []PlanDefinitionModel
	if err := s.db.WithContext(ctx).Order("plan_type").Find(&models).Error; err != nil {
		return nil, err
	}
	plans := make([]plan.Definition, len(models))
	for i := range models {
		plans[i] = models[i].ToDomain()
	}
	return plan.SortByPrice(plans), nil
}

// Upsert creates or replaces a plan.
func (s *PlanDefinitionStore) Upsert(ctx context.Context, p plan.Definition) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(PlanDefinitionModelFromDomain(p)).Error
}

// Delete removes a plan.
func (s *PlanDefinitionStore) Delete(ctx context.Context, planType string) error {
	res := s.db.WithContext(ctx).Delete(&PlanDefinitionModel{}, "plan_type = ?", planType)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}
