package postgres

import (
	"encoding/json"
	"time"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UsageEventModel is the GORM model for the usage ledger.
type UsageEventModel struct {
	ID              string            `gorm:"type:varchar(64);primaryKey"`
	OrganizationID  string            `gorm:"type:varchar(64);index:idx_usage_events_org_created,priority:1;not null"`
	UserID          string            `gorm:"type:varchar(64);not null"`
	SessionID       *int64            `gorm:"type:bigint"`
	EventType       string            `gorm:"type:varchar(100);not null"`
	EventData       datatypes.JSONMap `gorm:"type:jsonb"`
	CreditsConsumed int64             `gorm:"not null"`
	CreatedAt       time.Time         `gorm:"index:idx_usage_events_org_created,priority:2;not null"`
	Seq             int64             `gorm:"type:bigserial;->"` // insertion order, assigned by the database
}

// TableName returns the table name for the model.
func (UsageEventModel) TableName() string {
	return "usage_events"
}

// ToDomain converts the model to a ledger entry.
func (m *UsageEventModel) ToDomain() usage.Event {
	data := make(event.Data, len(m.EventData))
	for k, v := range m.EventData {
		data[k] = v
	}
	return usage.Event{
		ID:              m.ID,
		OrganizationID:  m.OrganizationID,
		UserID:          m.UserID,
		SessionID:       m.SessionID,
		EventType:       m.EventType,
		EventData:       data,
		CreditsConsumed: m.CreditsConsumed,
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

// UsageEventModelFromDomain creates a model from a ledger entry.
func UsageEventModelFromDomain(e usage.Event) *UsageEventModel {
	data := make(datatypes.JSONMap, len(e.EventData))
	for k, v := range e.EventData {
		data[k] = v
	}
	return &UsageEventModel{
		ID:              e.ID,
		OrganizationID:  e.OrganizationID,
		UserID:          e.UserID,
		SessionID:       e.SessionID,
		EventType:       e.EventType,
		EventData:       data,
		CreditsConsumed: e.CreditsConsumed,
		CreatedAt:       e.CreatedAt.UTC(),
	}
}

// OrganizationModel is the GORM model for organizations.
type OrganizationModel struct {
	ID          string            `gorm:"type:varchar(64);primaryKey"`
	Name        string            `gorm:"type:varchar(255);not null"`
	PlanType    string            `gorm:"type:varchar(50);not null"`
	UsageLimits datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"not null"`
}

// TableName returns the table name for the model.
func (OrganizationModel) TableName() string {
	return "organizations"
}

// ToDomain converts the model to an organization.
func (m *OrganizationModel) ToDomain() ports.Organization {
	o := ports.Organization{
		ID:        m.ID,
		Name:      m.Name,
		PlanType:  m.PlanType,
		CreatedAt: m.CreatedAt,
	}
	if len(m.UsageLimits) > 0 {
		o.UsageLimits = make(map[string]int64, len(m.UsageLimits))
		for k, v := range m.UsageLimits {
			if n, ok := toInt64(v); ok {
				o.UsageLimits[k] = n
			}
		}
	}
	return o
}

// OrganizationModelFromDomain creates a model from an organization.
func OrganizationModelFromDomain(o ports.Organization) *OrganizationModel {
	limits := make(datatypes.JSONMap, len(o.UsageLimits))
	for k, v := range o.UsageLimits {
		limits[k] = v
	}
	return &OrganizationModel{
		ID:          o.ID,
		Name:        o.Name,
		PlanType:    o.PlanType,
		UsageLimits: limits,
		CreatedAt:   o.CreatedAt,
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// UserModel is the GORM model for user identities.
type UserModel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	FullName  string    `gorm:"type:varchar(255);not null"`
	Email     string    `gorm:"type:varchar(255);not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model.
func (UserModel) TableName() string {
	return "users"
}

// EventDefinitionModel is the GORM model for the event cost catalog.
type EventDefinitionModel struct {
	EventType   string                                `gorm:"type:varchar(100);primaryKey"`
	BaseCredits float64                               `gorm:"not null"`
	Description string                                `gorm:"type:text;not null"`
	Category    string                                `gorm:"type:varchar(50);not null"`
	Endpoint    string                                `gorm:"type:varchar(255);not null"`
	Multipliers datatypes.JSONType[event.Multipliers] `gorm:"type:jsonb"`
	DataSchema  datatypes.JSONMap                     `gorm:"type:jsonb"`
	Disabled    bool                                  `gorm:"not null"`
	UpdatedAt   time.Time                             `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model.
func (EventDefinitionModel) TableName() string {
	return "event_definitions"
}

// ToDomain converts the model to a definition.
func (m *EventDefinitionModel) ToDomain() event.Definition {
	d := event.Definition{
		EventType:   m.EventType,
		BaseCredits: m.BaseCredits,
		Description: m.Description,
		Category:    m.Category,
		Endpoint:    m.Endpoint,
		Multipliers: m.Multipliers.Data(),
		Disabled:    m.Disabled,
	}
	if len(m.DataSchema) > 0 {
		d.Schema = make(map[string]event.FieldKind, len(m.DataSchema))
		for k, v := range m.DataSchema {
			if s, ok := v.(string); ok {
				d.Schema[k] = event.FieldKind(s)
			}
		}
	}
	return d
}

// EventDefinitionModelFromDomain creates a model from a definition.
func EventDefinitionModelFromDomain(d event.Definition) *EventDefinitionModel {
	schema := make(datatypes.JSONMap, len(d.Schema))
	for k, v := range d.Schema {
		schema[k] = string(v)
	}
	return &EventDefinitionModel{
		EventType:   d.EventType,
		BaseCredits: d.BaseCredits,
		Description: d.Description,
		Category:    d.Category,
		Endpoint:    d.Endpoint,
		Multipliers: datatypes.NewJSONType(d.Multipliers),
		DataSchema:  schema,
		Disabled:    d.Disabled,
	}
}

// PlanDefinitionModel is the GORM model for the plan catalog.
type PlanDefinitionModel struct {
	PlanType       string                          `gorm:"type:varchar(50);primaryKey"`
	DisplayName    string                          `gorm:"type:varchar(100);not null"`
	MonthlyCredits int64                           `gorm:"not null"`
	MonthlyPrice   decimal.Decimal                 `gorm:"type:numeric(12,2);not null"`
	AnnualPrice    decimal.Decimal                 `gorm:"type:numeric(12,2);not null"`
	Limits         datatypes.JSONType[plan.Limits] `gorm:"type:jsonb"`
	Features       datatypes.JSONType[[]string]    `gorm:"type:jsonb"`
	OverageRate    decimal.Decimal                 `gorm:"type:numeric(12,4);not null"`
	Disabled       bool                            `gorm:"not null"`
	UpdatedAt      time.Time                       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model.
func (PlanDefinitionModel) TableName() string {
	return "plan_definitions"
}

// ToDomain converts the model to a plan.
func (m *PlanDefinitionModel) ToDomain() plan.Definition {
	return plan.Normalize(plan.Definition{
		PlanType:       m.PlanType,
		DisplayName:    m.DisplayName,
		MonthlyCredits: m.MonthlyCredits,
		Pricing:        plan.Pricing{Monthly: m.MonthlyPrice, Annual: m.AnnualPrice},
		Limits:         m.Limits.Data(),
		Features:       m.Features.Data(),
		OverageRate:    m.OverageRate,
		Disabled:       m.Disabled,
	})
}

// PlanDefinitionModelFromDomain creates a model from a plan.
func PlanDefinitionModelFromDomain(p plan.Definition) *PlanDefinitionModel {
	p = plan.Normalize(p)
	return &PlanDefinitionModel{
		PlanType:       p.PlanType,
		DisplayName:    p.DisplayName,
		MonthlyCredits: p.MonthlyCredits,
		MonthlyPrice:   p.Pricing.Monthly,
		AnnualPrice:    p.Pricing.Annual,
		Limits:         datatypes.NewJSONType(p.Limits),
		Features:       datatypes.NewJSONType(p.Features),
		OverageRate:    p.OverageRate,
		Disabled:       p.Disabled,
	}
}

// AllModels lists every model, for AutoMigrate in tests and development.
func AllModels() []any {
	return []any{
		&UsageEventModel{},
		&OrganizationModel{},
		&UserModel{},
		&EventDefinitionModel{},
		&PlanDefinitionModel{},
	}
}
