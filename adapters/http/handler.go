// Package http provides the HTTP adapter for the credit meter.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nexastudio/creditmeter/app"
	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/usage"
)

// MaxTrendMonths bounds the trends window.
const MaxTrendMonths = 24

// Handler serves the metering API.
type Handler struct {
	tracker  *app.Tracker
	events   *app.EventRegistry
	plans    *app.PlanRegistry
	sync     *app.CatalogSync
	location *time.Location
	logger   zerolog.Logger
}

// HandlerDeps contains dependencies for the handler.
type HandlerDeps struct {
	Tracker  *app.Tracker
	Events   *app.EventRegistry
	Plans    *app.PlanRegistry
	Sync     *app.CatalogSync
	Location *time.Location // for ?month= and date filters, defaults to UTC
	Logger   zerolog.Logger
}

// NewHandler creates a new metering API handler.
func NewHandler(deps HandlerDeps) *Handler {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		tracker:  deps.Tracker,
		events:   deps.Events,
		plans:    deps.Plans,
		sync:     deps.Sync,
		location: loc,
		logger:   deps.Logger.With().Str("component", "http").Logger(),
	}
}

// Routes mounts the /v1 API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/organizations/{orgID}/usage", func(r chi.Router) {
		r.Post("/track", h.Track)
		r.Get("/breakdown", h.Breakdown)
		r.Get("/trends", h.Trends)
		r.Get("/history", h.History)
		r.Get("/dashboard", h.Dashboard)
	})
	r.Get("/events", h.ListEvents)
	r.Get("/plans", h.ListPlans)
	r.Post("/catalog/refresh", h.RefreshCatalog)
	r.Get("/catalog/info", h.CatalogInfo)
}

// TrackRequest is the body of a track call.
type TrackRequest struct {
	UserID          string     `json:"userId"`
	EventType       string     `json:"eventType"`
	SessionID       *int64     `json:"sessionId,omitempty"`
	EventData       event.Data `json:"eventData,omitempty"`
	CreditsOverride *int64     `json:"creditsOverride,omitempty"`
	SkipLimitCheck  bool       `json:"skipLimitCheck,omitempty"`
}

// Track charges one action to an organization.
//
//	@Summary		Track usage
//	@Description	Prices one action, checks it against the organization's plan limits and records it
//	@Tags			Usage
//	@Accept			json
//	@Produce		json
//	@Param			orgID	path		string			true	"Organization ID"
//	@Param			body	body		TrackRequest	true	"Action to charge"
//	@Success		200		{object}	app.TrackResult
//	@Failure		400		{object}	app.TrackResult	"Malformed body or unknown event type"
//	@Failure		402		{object}	app.TrackResult	"Credit limit reached"
//	@Failure		404		{object}	app.TrackResult	"Unknown organization"
//	@Failure		422		{object}	app.TrackResult	"Event data rejected"
//	@Failure		500		{object}	app.TrackResult	"Internal tracking error"
//	@Security		ServiceKey
//	@Router			/v1/organizations/{orgID}/usage/track [post]
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "userId is required")
		return
	}
	if strings.TrimSpace(req.EventType) == "" {
		writeError(w, http.StatusBadRequest, "missing_event_type", "eventType is required")
		return
	}

	data := req.EventData.Clone()
	if data == nil {
		data = event.Data{}
	}
	data["userAgent"] = r.UserAgent()
	data["ipAddress"] = extractIP(r)
	data["timestamp"] = h.tracker.Now().Format(time.RFC3339Nano)

	res := h.tracker.TrackUsage(r.Context(), app.TrackParams{
		OrganizationID:  chi.URLParam(r, "orgID"),
		UserID:          req.UserID,
		EventType:       req.EventType,
		SessionID:       req.SessionID,
		EventData:       data,
		CreditsOverride: req.CreditsOverride,
		SkipLimitCheck:  req.SkipLimitCheck,
	})

	if !res.Success {
		writeJSON(w, res.Kind().HTTPStatus(), res)
		return
	}
	setCreditHeaders(w, res)
	writeJSON(w, http.StatusOK, res)
}

// Breakdown returns the monthly usage breakdown.
//
//	@Summary		Monthly breakdown
//	@Tags			Usage
//	@Produce		json
//	@Param			orgID	path		string	true	"Organization ID"
//	@Param			month	query		string	false	"Month as YYYY-MM, defaults to the current month"
//	@Success		200		{object}	usage.Breakdown
//	@Failure		400		{object}	ErrorBody
//	@Failure		500		{object}	ErrorBody
//	@Security		ServiceKey
//	@Router			/v1/organizations/{orgID}/usage/breakdown [get]
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	month, ok := h.parseMonth(w, r)
	if !ok {
		return
	}

	b, err := h.tracker.GetUsageBreakdown(r.Context(), chi.URLParam(r, "orgID"), month)
	if err != nil {
		h.internalError(w, r, "breakdown", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Trends returns month-over-month growth and a forecast.
//
//	@Summary		Usage trends
//	@Tags			Usage
//	@Produce		json
//	@Param			orgID	path		string	true	"Organization ID"
//	@Param			months	query		int		false	"Window in months (1-24)"	default(6)
//	@Success		200		{object}	usage.Trends
//	@Failure		400		{object}	ErrorBody
//	@Failure		500		{object}	ErrorBody
//	@Security		ServiceKey
//	@Router			/v1/organizations/{orgID}/usage/trends [get]
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	months, ok := parseIntQuery(r, "months", app.DefaultTrendMonths)
	if !ok || months < 1 || months > MaxTrendMonths {
		writeError(w, http.StatusBadRequest, "invalid_months", "months must be between 1 and 24")
		return
	}

	trends, err := h.tracker.GetUsageTrends(r.Context(), chi.URLParam(r, "orgID"), months)
	if err != nil {
		h.internalError(w, r, "trends", err)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

// History returns one page of filtered event history.
//
//	@Summary		Usage history
//	@Tags			Usage
//	@Produce		json
//	@Param			orgID		path		string	true	"Organization ID"
//	@Param			category	query		string	false	"Event category"
//	@Param			eventType	query		string	false	"Event type"
//	@Param			userId		query		string	false	"User ID"
//	@Param			sessionId	query		int		false	"Session ID"
//	@Param			minCredits	query		int		false	"Minimum credits"
//	@Param			maxCredits	query		int		false	"Maximum credits"
//	@Param			startDate	query		string	false	"YYYY-MM-DD or RFC 3339"
//	@Param			endDate		query		string	false	"YYYY-MM-DD or RFC 3339"
//	@Param			page		query		int		false	"Page number"	default(1)
//	@Param			limit		query		int		false	"Page size"		default(50)
//	@Success		200			{object}	app.HistoryPage
//	@Failure		400			{object}	ErrorBody
//	@Failure		500			{object}	ErrorBody
//	@Security		ServiceKey
//	@Router			/v1/organizations/{orgID}/usage/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	hq, msg := h.parseHistoryQuery(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_query", msg)
		return
	}

	page, err := h.tracker.GetUsageHistory(r.Context(), chi.URLParam(r, "orgID"), hq)
	if err != nil {
		h.internalError(w, r, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) parseHistoryQuery(r *http.Request) (app.HistoryQuery, string) {
	q := r.URL.Query()
	hq := app.HistoryQuery{Category: q.Get("category")}
	hq.EventType = q.Get("eventType")
	hq.UserID = q.Get("userId")

	var ok bool
	if hq.Page, ok = parseIntQuery(r, "page", 1); !ok {
		return hq, "page must be an integer"
	}
	if hq.Limit, ok = parseIntQuery(r, "limit", usage.DefaultPageSize); !ok {
		return hq, "limit must be an integer"
	}
	if hq.SessionID, ok = parseInt64Query(r, "sessionId"); !ok {
		return hq, "sessionId must be an integer"
	}
	if hq.MinCredits, ok = parseInt64Query(r, "minCredits"); !ok {
		return hq, "minCredits must be an integer"
	}
	if hq.MaxCredits, ok = parseInt64Query(r, "maxCredits"); !ok {
		return hq, "maxCredits must be an integer"
	}

	var err error
	if hq.Start, err = h.parseDate(q.Get("startDate"), false); err != nil {
		return hq, "startDate must be YYYY-MM-DD or RFC 3339"
	}
	if hq.End, err = h.parseDate(q.Get("endDate"), true); err != nil {
		return hq, "endDate must be YYYY-MM-DD or RFC 3339"
	}
	return hq, ""
}

// parseDate accepts a day or a full timestamp. A bare end day covers the
// whole day.
func (h *Handler) parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(usage.DayLayout, s, h.location)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

// Dashboard returns the combined dashboard view.
//
//	@Summary		Usage dashboard
//	@Tags			Usage
//	@Produce		json
//	@Param			orgID	path		string	true	"Organization ID"
//	@Param			month	query		string	false	"Month as YYYY-MM"
//	@Success		200		{object}	app.Dashboard
//	@Failure		400		{object}	ErrorBody
//	@Failure		500		{object}	ErrorBody
//	@Security		ServiceKey
//	@Router			/v1/organizations/{orgID}/usage/dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	month, ok := h.parseMonth(w, r)
	if !ok {
		return
	}

	d, err := h.tracker.GetDashboard(r.Context(), chi.URLParam(r, "orgID"), month)
	if err != nil {
		h.internalError(w, r, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// parseMonth reads ?month=YYYY-MM. A missing month yields the zero time,
// which the tracker reads as the current month.
func (h *Handler) parseMonth(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	s := r.URL.Query().Get("month")
	if s == "" {
		return time.Time{}, true
	}
	month, err := usage.ParseMonth(s, h.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_month", "month must be YYYY-MM")
		return time.Time{}, false
	}
	return month, true
}

// ListEvents returns the event catalog, optionally narrowed to a category.
//
//	@Summary		List event types
//	@Tags			Catalog
//	@Produce		json
//	@Param			category	query		string	false	"Event category"
//	@Success		200			{object}	map[string]interface{}	"events, total"
//	@Security		ServiceKey
//	@Router			/v1/events [get]
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var defs []event.Definition
	if category := r.URL.Query().Get("category"); category != "" {
		defs = h.events.ByCategory(r.Context(), category)
	} else {
		defs = h.events.All(r.Context())
	}
	if defs == nil {
		defs = []event.Definition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": defs,
		"total":  len(defs),
	})
}

// ListPlans returns the plan catalog, cheapest first.
//
//	@Summary		List plans
//	@Tags			Catalog
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"plans, total"
//	@Security		ServiceKey
//	@Router			/v1/plans [get]
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.plans.SortedByPrice(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"plans": plans,
		"total": len(plans),
	})
}

// RefreshCatalog reloads both catalogs and tells other replicas to do the same.
//
//	@Summary		Refresh catalogs
//	@Tags			Catalog
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"refreshed, catalogs"
//	@Failure		500	{object}	ErrorBody
//	@Security		ServiceKey
//	@Router			/v1/catalog/refresh [post]
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.RefreshAll(r.Context()); err != nil {
		h.internalError(w, r, "catalog refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed": true,
		"catalogs":  h.sync.Info(),
	})
}

// CatalogInfo returns the state of the catalog caches.
//
//	@Summary		Catalog cache state
//	@Tags			Catalog
//	@Produce		json
//	@Success		200	{object}	map[string]app.CacheInfo
//	@Security		ServiceKey
//	@Router			/v1/catalog/info [get]
func (h *Handler) CatalogInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Info())
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	h.logger.Error().Err(err).
		Str("op", op).
		Str("org_id", chi.URLParam(r, "orgID")).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load usage data")
}

// Health is the liveness probe.
//
//	@Summary	Liveness check
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	map[string]string	"status, time"
//	@Router		/healthz [get]
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   strconv.FormatInt(time.Now().Unix(), 10),
	})
}
