package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/ports"
	"github.com/shopspring/decimal"
)

// EventDefinitionStore implements ports.EventDefinitionStore using SQLite.
type EventDefinitionStore struct {
	db *DB
}

// NewEventDefinitionStore creates a new SQLite event catalog store.
func NewEventDefinitionStore(db *DB) *EventDefinitionStore {
	return &EventDefinitionStore{db: db}
}

var _ ports.EventDefinitionStore = (*EventDefinitionStore)(nil)

// List returns all definitions ordered by event type.
func (s *EventDefinitionStore) List(ctx context.Context) ([]event.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, base_credits, description, category, endpoint, multipliers, data_schema, disabled
		FROM event_definitions
		ORDER BY event_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]event.Definition, 0)
	for rows.Next() {
		var (
			d           event.Definition
			multipliers string
			schema      string
		)
		if err := rows.Scan(&d.EventType, &d.BaseCredits, &d.Description, &d.Category, &d.Endpoint, &multipliers, &schema, &d.Disabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(multipliers), &d.Multipliers); err != nil {
			return nil, fmt.Errorf("decode multipliers for %s: %w", d.EventType, err)
		}
		if schema != "" && schema != "{}" {
			if err := json.Unmarshal([]byte(schema), &d.Schema); err != nil {
				return nil, fmt.Errorf("decode schema for %s: %w", d.EventType, err)
			}
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// Upsert creates or replaces a definition.
func (s *EventDefinitionStore) Upsert(ctx context.Context, d event.Definition) error {
	multipliers, err := json.Marshal(d.Multipliers)
	if err != nil {
		return fmt.Errorf("encode multipliers: %w", err)
	}
	schema := []byte("{}")
	if len(d.Schema) > 0 {
		if schema, err = json.Marshal(d.Schema); err != nil {
			return fmt.Errorf("encode schema: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_definitions (
			event_type, base_credits, description, category, endpoint, multipliers, data_schema, disabled, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_type) DO UPDATE SET
			base_credits = excluded.base_credits,
			description = excluded.description,
			category = excluded.category,
			endpoint = excluded.endpoint,
			multipliers = excluded.multipliers,
			data_schema = excluded.data_schema,
			disabled = excluded.disabled,
			updated_at = excluded.updated_at
	`, d.EventType, d.BaseCredits, d.Description, d.Category, d.Endpoint, string(multipliers), string(schema), d.Disabled, formatTime(time.Now()))
	return err
}

// Delete removes a definition.
func (s *EventDefinitionStore) Delete(ctx context.Context, eventType string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM event_definitions WHERE event_type = ?", eventType)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// PlanDefinitionStore implements ports.PlanDefinitionStore using SQLite.
type PlanDefinitionStore struct {
	db *DB
}

// NewPlanDefinitionStore creates a new SQLite plan catalog store.
func NewPlanDefinitionStore(db *DB) *PlanDefinitionStore {
	return &PlanDefinitionStore{db: db}
}

var _ ports.PlanDefinitionStore = (*PlanDefinitionStore)(nil)

// List returns all plans ordered by monthly price.
func (s *PlanDefinitionStore) List(ctx context.Context) ([]plan.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_type, display_name, monthly_credits, monthly_price, annual_price,
			limits, features, overage_rate, disabled
		FROM plan_definitions
		ORDER BY plan_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]plan.Definition, 0)
	for rows.Next() {
		var (
			p                     plan.Definition
			monthly, annual, rate string
			limits, features      string
		)
		if err := rows.Scan(&p.PlanType, &p.DisplayName, &p.MonthlyCredits, &monthly, &annual, &limits, &features, &rate, &p.Disabled); err != nil {
			return nil, err
		}
		if p.Pricing.Monthly, err = decimal.NewFromString(monthly); err != nil {
			return nil, fmt.Errorf("parse monthly price for %s: %w", p.PlanType, err)
		}
		if p.Pricing.Annual, err = decimal.NewFromString(annual); err != nil {
			return nil, fmt.Errorf("parse annual price for %s: %w", p.PlanType, err)
		}
		if p.OverageRate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse overage rate for %s: %w", p.PlanType, err)
		}
		if err := json.Unmarshal([]byte(limits), &p.Limits); err != nil {
			return nil, fmt.Errorf("decode limits for %s: %w", p.PlanType, err)
		}
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, fmt.Errorf("decode features for %s: %w", p.PlanType, err)
		}
		plans = append(plans, plan.Normalize(p))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plan.SortByPrice(plans), nil
}

// Upsert creates or replaces a plan.
func (s *PlanDefinitionStore) Upsert(ctx context.Context, p plan.Definition) error {
	p = plan.Normalize(p)
	limits, err := json.Marshal(p.Limits)
	if err != nil {
		return fmt.Errorf("encode limits: %w", err)
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plan_definitions (
			plan_type, display_name, monthly_credits, monthly_price, annual_price,
			limits, features, overage_rate, disabled, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_type) DO UPDATE SET
			display_name = excluded.display_name,
			monthly_credits = excluded.monthly_credits,
			monthly_price = excluded.monthly_price,
			annual_price = excluded.annual_price,
			limits = excluded.limits,
			features = excluded.features,
			overage_rate = excluded.overage_rate,
			disabled = excluded.disabled,
			updated_at = excluded.updated_at
	`, p.PlanType, p.DisplayName, p.MonthlyCredits, p.Pricing.Monthly.String(), p.Pricing.Annual.String(),
		string(limits), string(features), p.OverageRate.String(), p.Disabled, formatTime(time.Now()))
	return err
}

// Delete removes a plan.
func (s *PlanDefinitionStore) Delete(ctx context.Context, planType string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM plan_definitions WHERE plan_type = ?", planType)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}
