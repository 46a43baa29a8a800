package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sreerevanth/behaviorlens/pkg/engine"
	"github.com/sreerevanth/behaviorlens/pkg/infra/store"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/alert"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/event"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/subject"
)

// Archive is the slice of the SQLite store the API reads: archived
// events and the report aggregations.
type Archive interface {
	ListEvents(ctx context.Context, f event.Filter) ([]event.Event, int, error)
	BuildActivityReport(ctx context.Context, from, to time.Time) (*store.ActivityReport, error)
}

// EngineStatus exposes evaluation counters for the status endpoint.
type EngineStatus interface {
	Stats() engine.Stats
}

// DispatchStatus exposes delivery counters for the status endpoint.
type DispatchStatus interface {
	Stats() (dispatched, failed, dropped uint64)
	Depth() int
}

// Handlers binds the domain services to routes.
type Handlers struct {
	subjects *subject.Service
	intake   *event.Service
	rules    rule.Store
	alerts   *alert.Service
	archive  Archive
	engine   EngineStatus
	dispatch DispatchStatus
}

func NewHandlers(subjects *subject.Service, intake *event.Service, rules rule.Store,
	alerts *alert.Service, archive Archive, eng EngineStatus, dispatch DispatchStatus) *Handlers {
	return &Handlers{
		subjects: subjects,
		intake:   intake,
		rules:    rules,
		alerts:   alerts,
		archive:  archive,
		engine:   eng,
		dispatch: dispatch,
	}
}

func (h *Handlers) Register(r *Router) {
	r.Handle(http.MethodPost, "/events", h.ingestEvent)
	r.Handle(http.MethodGet, "/events", h.listEvents)

	r.Handle(http.MethodGet, "/rules", h.listRules)
	r.Handle(http.MethodPost, "/rules", h.createRule)
	r.Handle(http.MethodGet, "/rules/{id}", h.getRule)
	r.Handle(http.MethodPut, "/rules/{id}", h.updateRule)
	r.Handle(http.MethodDelete, "/rules/{id}", h.deleteRule)
	r.Handle(http.MethodPost, "/rules/{id}/enable", h.enableRule)
	r.Handle(http.MethodPost, "/rules/{id}/disable", h.disableRule)

	r.Handle(http.MethodGet, "/alerts", h.listAlerts)
	r.Handle(http.MethodGet, "/alerts/active", h.listActiveAlerts)
	r.Handle(http.MethodGet, "/alerts/{id}", h.getAlert)
	r.Handle(http.MethodPost, "/alerts/{id}/ack", h.ackAlert)
	r.Handle(http.MethodPost, "/alerts/{id}/resolve", h.resolveAlert)

	r.Handle(http.MethodGet, "/subjects", h.listSubjects)
	r.Handle(http.MethodPost, "/subjects", h.createSubject)
	r.Handle(http.MethodGet, "/subjects/{id}", h.getSubject)
	r.Handle(http.MethodPut, "/subjects/{id}", h.updateSubject)
	r.Handle(http.MethodDelete, "/subjects/{id}", h.deleteSubject)

	r.Handle(http.MethodGet, "/reports/activity", h.activityReport)
	r.Handle(http.MethodGet, "/status", h.status)
}

// --- envelope ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// --- events ---

func (h *Handlers) ingestEvent(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var e event.Event
	if !decodeBody(w, r, &e) {
		return
	}

	if err := h.intake.Ingest(r.Context(), &e); err != nil {
		switch {
		case errors.Is(err, event.ErrUnknownSubject):
			writeError(w, http.StatusNotFound, "UNKNOWN_SUBJECT", err.Error())
		case errors.Is(err, event.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, e)
}

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_ARCHIVE", "event archive is not configured")
		return
	}

	q := r.URL.Query()
	filter := event.Filter{
		SubjectID: q.Get("subject_id"),
		Type:      q.Get("type"),
		Limit:     intParam(q.Get("limit"), 100),
		Offset:    intParam(q.Get("offset"), 0),
	}
	if t, ok := timeParam(q.Get("since")); ok {
		filter.Since = t
	}
	if t, ok := timeParam(q.Get("until")); ok {
		filter.Until = t
	}

	events, total, err := h.archive.ListEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": orEmptyEvents(events),
		"total":  total,
	})
}

// --- rules ---

func (h *Handlers) listRules(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	filter := rule.Filter{
		EnabledOnly: q.Get("enabled") == "true",
		EventType:   q.Get("event_type"),
	}

	rules, total, err := h.rules.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": orEmptyRules(rules),
		"total": total,
	})
}

func (h *Handlers) createRule(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var rl rule.Rule
	if !decodeBody(w, r, &rl) {
		return
	}

	if err := h.rules.Create(r.Context(), &rl); err != nil {
		if errors.Is(err, rule.ErrExists) {
			writeError(w, http.StatusConflict, "RULE_EXISTS", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_RULE", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, rl)
}

func (h *Handlers) getRule(w http.ResponseWriter, r *http.Request, params map[string]string) {
	rl, err := h.rules.Get(r.Context(), params["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "RULE_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

func (h *Handlers) updateRule(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var rl rule.Rule
	if !decodeBody(w, r, &rl) {
		return
	}
	rl.ID = params["id"]

	if err := h.rules.Update(r.Context(), &rl); err != nil {
		switch {
		case errors.Is(err, rule.ErrNotFound):
			writeError(w, http.StatusNotFound, "RULE_NOT_FOUND", err.Error())
		case errors.Is(err, rule.ErrExists):
			writeError(w, http.StatusConflict, "RULE_EXISTS", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "INVALID_RULE", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, rl)
}

func (h *Handlers) deleteRule(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := h.rules.Delete(r.Context(), params["id"]); err != nil {
		writeError(w, http.StatusNotFound, "RULE_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": params["id"]})
}

func (h *Handlers) enableRule(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.setRuleEnabled(w, r, params["id"], true)
}

func (h *Handlers) disableRule(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.setRuleEnabled(w, r, params["id"], false)
}

func (h *Handlers) setRuleEnabled(w http.ResponseWriter, r *http.Request, id string, enabled bool) {
	rl, err := h.rules.SetEnabled(r.Context(), id, enabled)
	if err != nil {
		writeError(w, http.StatusNotFound, "RULE_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

// --- alerts ---

func (h *Handlers) listAlerts(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	filter := alert.Filter{
		RuleID:    q.Get("rule_id"),
		SubjectID: q.Get("subject_id"),
		Status:    alert.Status(q.Get("status")),
		Severity:  rule.Severity(q.Get("severity")),
		Limit:     intParam(q.Get("limit"), 100),
		Offset:    intParam(q.Get("offset"), 0),
	}
	if t, ok := timeParam(q.Get("since")); ok {
		filter.Since = t
	}

	alerts, total, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": orEmptyAlerts(alerts),
		"total":  total,
	})
}

func (h *Handlers) listActiveAlerts(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	alerts, err := h.alerts.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": orEmptyAlerts(alerts),
		"total":  len(alerts),
	})
}

func (h *Handlers) getAlert(w http.ResponseWriter, r *http.Request, params map[string]string) {
	a, err := h.alerts.Get(r.Context(), params["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "ALERT_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) ackAlert(w http.ResponseWriter, r *http.Request, params map[string]string) {
	a, err := h.alerts.Acknowledge(r.Context(), params["id"])
	if err != nil {
		writeAlertTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) resolveAlert(w http.ResponseWriter, r *http.Request, params map[string]string) {
	a, err := h.alerts.Resolve(r.Context(), params["id"])
	if err != nil {
		writeAlertTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func writeAlertTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alert.ErrNotFound):
		writeError(w, http.StatusNotFound, "ALERT_NOT_FOUND", err.Error())
	case errors.Is(err, alert.ErrInvalidStatus):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// --- subjects ---

func (h *Handlers) listSubjects(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	filter := subject.Filter{
		Type:    q.Get("type"),
		Profile: q.Get("profile"),
		Limit:   intParam(q.Get("limit"), 100),
		Offset:  intParam(q.Get("offset"), 0),
	}

	subjects, total, err := h.subjects.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subjects": orEmptySubjects(subjects),
		"total":    total,
	})
}

func (h *Handlers) createSubject(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var input subject.RegisterInput
	if !decodeBody(w, r, &input) {
		return
	}

	sub, err := h.subjects.Register(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SUBJECT", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handlers) getSubject(w http.ResponseWriter, r *http.Request, params map[string]string) {
	sub, err := h.subjects.Get(r.Context(), params["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "SUBJECT_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handlers) updateSubject(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var input subject.UpdateInput
	if !decodeBody(w, r, &input) {
		return
	}

	sub, err := h.subjects.Update(r.Context(), params["id"], input)
	if err != nil {
		if errors.Is(err, subject.ErrNotFound) {
			writeError(w, http.StatusNotFound, "SUBJECT_NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_SUBJECT", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handlers) deleteSubject(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := h.subjects.Delete(r.Context(), params["id"]); err != nil {
		writeError(w, http.StatusNotFound, "SUBJECT_NOT_FOUND", err.Error())
		return
	}

	// Window state for a removed subject is dead weight.
	h.intake.Forget(params["id"])

	writeJSON(w, http.StatusOK, map[string]any{"deleted": params["id"]})
}

// --- reports & status ---

func (h *Handlers) activityReport(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_ARCHIVE", "event archive is not configured")
		return
	}

	q := r.URL.Query()
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if t, ok := timeParam(q.Get("from")); ok {
		from = t
	}
	if t, ok := timeParam(q.Get("to")); ok {
		to = t
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "BAD_RANGE", "from must be before to")
		return
	}

	report, err := h.archive.BuildActivityReport(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) status(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ctx := r.Context()

	_, subjectTotal, _ := h.subjects.List(ctx, subject.Filter{})
	_, ruleTotal, _ := h.rules.List(ctx, rule.Filter{})
	enabled, _, _ := h.rules.List(ctx, rule.Filter{EnabledOnly: true})
	active, _ := h.alerts.ListActive(ctx)
	ingested, rejected := h.intake.Stats()

	payload := map[string]any{
		"subjects":      subjectTotal,
		"rules":         ruleTotal,
		"rules_enabled": len(enabled),
		"active_alerts": len(active),
		"intake": map[string]any{
			"ingested": ingested,
			"rejected": rejected,
		},
	}

	if h.engine != nil {
		stats := h.engine.Stats()
		payload["engine"] = stats
		if !stats.StartedAt.IsZero() {
			payload["uptime_seconds"] = int64(time.Since(stats.StartedAt).Seconds())
		}
	}
	if h.dispatch != nil {
		dispatched, failed, dropped := h.dispatch.Stats()
		payload["dispatch"] = map[string]any{
			"dispatched":  dispatched,
			"failed":      failed,
			"dropped":     dropped,
			"queue_depth": h.dispatch.Depth(),
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

// --- param helpers ---

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// timeParam accepts RFC3339 timestamps or unix seconds.
func timeParam(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	return time.Time{}, false
}

// JSON lists should encode as [] rather than null.

func orEmptyEvents(v []event.Event) []event.Event {
	if v == nil {
		return []event.Event{}
	}
	return v
}

func orEmptyRules(v []rule.Rule) []rule.Rule {
	if v == nil {
		return []rule.Rule{}
	}
	return v
}

func orEmptyAlerts(v []alert.Alert) []alert.Alert {
	if v == nil {
		return []alert.Alert{}
	}
	return v
}

func orEmptySubjects(v []subject.Subject) []subject.Subject {
	if v == nil {
		return []subject.Subject{}
	}
	return v
}
