package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/quota"
	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
)

// Enforcement selects how the monthly allotment is enforced.
type Enforcement string

const (
	// EnforcementSoft checks then appends in separate steps. Concurrent
	// charges near the boundary may overshoot by up to one event each.
	EnforcementSoft Enforcement = "soft"

	// EnforcementStrict checks and appends atomically when the ledger
	// implements ports.AtomicAppender.
	EnforcementStrict Enforcement = "strict"
)

// ParseEnforcement parses an enforcement mode. Empty means soft.
func ParseEnforcement(s string) (Enforcement, error) {
	switch Enforcement(s) {
	case "", EnforcementSoft:
		return EnforcementSoft, nil
	case EnforcementStrict:
		return EnforcementStrict, nil
	default:
		return "", fmt.Errorf("unknown enforcement mode %q (want soft or strict)", s)
	}
}

// TrackParams describes one action to meter.
type TrackParams struct {
	OrganizationID  string
	UserID          string
	EventType       string
	SessionID       *int64
	EventData       event.Data
	CreditsOverride *int64 // replaces the computed cost when set, 0 included
	SkipLimitCheck  bool
}

// TrackResult is the outcome of a tracking call.
type TrackResult struct {
	Success          bool           `json:"success"`
	CreditsConsumed  int64          `json:"creditsConsumed"`
	RemainingCredits usage.Credits  `json:"remainingCredits"`
	UsageEventID     string         `json:"usageEventId,omitempty"`
	LimitWarning     *quota.Warning `json:"limitWarning,omitempty"`
	Error            string         `json:"error,omitempty"`

	Err *TrackError `json:"-"`
}

// Kind returns the failure kind, or KindNone on success.
func (r TrackResult) Kind() ErrorKind {
	if r.Err == nil {
		return KindNone
	}
	return r.Err.Kind
}

func failed(err *TrackError, remaining usage.Credits) TrackResult {
	return TrackResult{
		RemainingCredits: remaining,
		Error:            err.Message,
		Err:              err,
	}
}

// TrackerDeps contains dependencies for Tracker.
type TrackerDeps struct {
	Events  *EventRegistry
	Plans   *PlanRegistry
	Ledger  ports.UsageStore
	Orgs    ports.OrganizationStore
	Users   ports.UserStore
	IDGen   ports.IDGenerator
	Clock   ports.Clock
	Logger  zerolog.Logger
	Metrics Metrics
}

// TrackerConfig contains configuration for Tracker.
type TrackerConfig struct {
	Enforcement Enforcement
	Location    *time.Location // calendar for month windows; nil means UTC
}

// Tracker meters actions against monthly credit allotments and reports usage.
type Tracker struct {
	events  *EventRegistry
	plans   *PlanRegistry
	ledger  ports.UsageStore
	orgs    ports.OrganizationStore
	users   ports.UserStore
	idGen   ports.IDGenerator
	clock   ports.Clock
	logger  zerolog.Logger
	metrics Metrics

	strict atomic.Bool
	loc    *time.Location
}

// NewTracker creates a usage tracker.
func NewTracker(deps TrackerDeps, cfg TrackerConfig) *Tracker {
	t := &Tracker{
		events:  deps.Events,
		plans:   deps.Plans,
		ledger:  deps.Ledger,
		orgs:    deps.Orgs,
		users:   deps.Users,
		idGen:   deps.IDGen,
		clock:   deps.Clock,
		logger:  deps.Logger.With().Str("service", "tracker").Logger(),
		metrics: metricsOrNop(deps.Metrics),
		loc:     cfg.Location,
	}
	if t.loc == nil {
		t.loc = time.UTC
	}
	t.SetEnforcement(cfg.Enforcement)

	if _, ok := t.ledger.(ports.AtomicAppender); !ok && cfg.Enforcement == EnforcementStrict {
		t.logger.Warn().Msg("ledger cannot append atomically, strict enforcement falls back to soft")
	}
	return t
}

// SetEnforcement switches the enforcement mode at runtime.
func (t *Tracker) SetEnforcement(mode Enforcement) {
	t.strict.Store(mode == EnforcementStrict)
}

// Enforcement returns the current enforcement mode.
func (t *Tracker) Enforcement() Enforcement {
	if t.strict.Load() {
		return EnforcementStrict
	}
	return EnforcementSoft
}

// Location returns the calendar used for month windows.
func (t *Tracker) Location() *time.Location {
	return t.loc
}

// Now returns the current time from the tracker's clock, in UTC.
func (t *Tracker) Now() time.Time {
	return t.clock.Now().UTC()
}

func (t *Tracker) now() time.Time {
	return t.clock.Now().In(t.loc)
}

// TrackUsage charges one action to an organization.
// Failures are reported in the result, never returned. A panic below it
// becomes an internal tracking error.
func (t *Tracker) TrackUsage(ctx context.Context, p TrackParams) (res TrackResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().
				Str("org_id", p.OrganizationID).
				Str("event_type", p.EventType).
				Interface("panic", r).
				Msg("panic while tracking usage")
			res = failed(internalError(fmt.Errorf("panic: %v", r)), 0)
			t.metrics.ObserveTrack(p.EventType, res.Kind().outcome(), 0, time.Since(started))
		}
	}()

	res = t.track(ctx, p)

	t.metrics.ObserveTrack(p.EventType, res.Kind().outcome(), res.CreditsConsumed, time.Since(started))
	if w := res.LimitWarning; w != nil && w.Level != quota.WarningNone {
		t.metrics.ObserveWarning(w.Level.String())
	}
	return res
}

func (t *Tracker) track(ctx context.Context, p TrackParams) TrackResult {
	log := t.logger.With().
		Str("org_id", p.OrganizationID).
		Str("user_id", p.UserID).
		Str("event_type", p.EventType).
		Logger()

	def, ok := t.events.Get(ctx, p.EventType)
	if !ok {
		log.Warn().Msg("unknown event type")
		return failed(unknownEventType(p.EventType), 0)
	}
	if err := event.ValidateData(def, p.EventData); err != nil {
		return failed(invalidEventData(err), 0)
	}

	credits := event.ComputeCredits(def, p.EventData)
	if p.CreditsOverride != nil {
		if *p.CreditsOverride < 0 {
			return failed(invalidEventData(errors.New("credits override must be non-negative")), 0)
		}
		credits = *p.CreditsOverride
	}

	now := t.now()
	start, end := usage.MonthBounds(now)
	e := usage.NewEvent(t.idGen.New(), p.OrganizationID, p.UserID, p.SessionID, def, p.EventData, credits, now)

	if p.SkipLimitCheck {
		if err := t.ledger.Append(ctx, e); err != nil {
			log.Error().Err(err).Msg("failed to record usage event")
			return failed(internalError(err), 0)
		}
		return t.charged(ctx, log, e, start, end)
	}

	org, err := t.orgs.Get(ctx, p.OrganizationID)
	if errors.Is(err, ports.ErrNotFound) {
		log.Warn().Msg("organization not found")
		return failed(orgNotFound(err), 0)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load organization")
		return failed(internalError(err), 0)
	}
	allotment := t.plans.Allotment(ctx, org)

	used, terr := t.append(ctx, e, start, end, allotment)
	if terr != nil {
		if terr.Kind == KindLimitExceeded {
			log.Info().
				Int64("used", terr.Used).
				Int64("needed", terr.Needed).
				Int64("limit", terr.Limit).
				Msg("credit limit exceeded")
			return failed(terr, usage.Remaining(allotment, terr.Used))
		}
		log.Error().Err(terr.Err).Msg("failed to record usage event")
		return failed(terr, 0)
	}

	return t.chargedWithin(ctx, log, e, start, end, allotment, used+e.CreditsConsumed)
}

// append stores e if it fits in allotment for the month [start, end] and
// returns the credits used before it.
func (t *Tracker) append(ctx context.Context, e usage.Event, start, end time.Time, allotment int64) (int64, *TrackError) {
	if allotment < 0 {
		if err := t.ledger.Append(ctx, e); err != nil {
			return 0, internalError(err)
		}
		return 0, nil
	}

	if aa, ok := t.ledger.(ports.AtomicAppender); ok && t.strict.Load() {
		used, err := aa.AppendWithinLimit(ctx, e, start, end, allotment)
		if errors.Is(err, ports.ErrLimitExceeded) {
			return used, limitExceeded(used, e.CreditsConsumed, allotment)
		}
		if err != nil {
			return 0, internalError(err)
		}
		return used, nil
	}

	used, err := t.ledger.SumCredits(ctx, e.OrganizationID, start, end)
	if err != nil {
		return 0, internalError(err)
	}
	if check := quota.Check(used, e.CreditsConsumed, allotment); !check.Allowed {
		return used, limitExceeded(used, e.CreditsConsumed, allotment)
	}
	if err := t.ledger.Append(ctx, e); err != nil {
		return used, internalError(err)
	}
	return used, nil
}

// charged builds the result of an append that skipped the limit check.
// The organization is resolved afterwards only to report remaining credits.
func (t *Tracker) charged(ctx context.Context, log zerolog.Logger, e usage.Event, start, end time.Time) TrackResult {
	org, err := t.orgs.Get(ctx, e.OrganizationID)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			log.Warn().Err(err).Msg("failed to load organization after charge")
		}
		log.Debug().Int64("credits", e.CreditsConsumed).Msg("usage tracked without limit check")
		return TrackResult{Success: true, CreditsConsumed: e.CreditsConsumed, UsageEventID: e.ID}
	}
	return t.chargedWithin(ctx, log, e, start, end, t.plans.Allotment(ctx, org), -1)
}

// chargedWithin builds a success result with post-charge remaining credits.
// estimate is used when the month total cannot be re-read; -1 means unknown.
func (t *Tracker) chargedWithin(ctx context.Context, log zerolog.Logger, e usage.Event, start, end time.Time, allotment, estimate int64) TrackResult {
	res := TrackResult{
		Success:          true,
		CreditsConsumed:  e.CreditsConsumed,
		RemainingCredits: usage.UnlimitedCredits,
		UsageEventID:     e.ID,
	}

	if allotment >= 0 {
		used, err := t.ledger.SumCredits(ctx, e.OrganizationID, start, end)
		if err != nil {
			log.Warn().Err(err).Msg("failed to recompute usage after charge")
			used = estimate
		}
		if used < 0 {
			res.RemainingCredits = 0
		} else {
			res.RemainingCredits = usage.Remaining(allotment, used)
			res.LimitWarning = quota.Warn(used, allotment)
		}
	}

	log.Debug().
		Str("event_id", e.ID).
		Int64("credits", e.CreditsConsumed).
		Stringer("remaining", res.RemainingCredits).
		Msg("usage tracked")

	return res
}
