// Package api exposes the coordination core over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/approval"
	"github.com/gyaneshwarpardhi/docflow/internal/bus"
	"github.com/gyaneshwarpardhi/docflow/internal/document"
	"github.com/gyaneshwarpardhi/docflow/internal/engine"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/inventory"
	"github.com/gyaneshwarpardhi/docflow/internal/metrics"
	"github.com/gyaneshwarpardhi/docflow/internal/rules"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	DB        *store.DB
	Bus       *bus.Bus
	Engine    *engine.Engine
	Documents *document.Service
	Approvals *approval.Engine
	Ledger    *inventory.Ledger
	Rules     *rules.Service

	// RuleTestDelay is how long POST /v1/rules/test waits for the engine
	// before reading the execution log.
	RuleTestDelay time.Duration
	Logger        *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
	mux *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{Deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.publishEvent)

	h.mux.HandleFunc("POST /v1/documents", h.createDocument)
	h.mux.HandleFunc("GET /v1/documents/{type}/{id}", h.getDocument)
	h.mux.HandleFunc("POST /v1/documents/{type}/{id}/transition", h.transitionDocument)
	h.mux.HandleFunc("POST /v1/documents/{type}/{id}/qc-signoff", h.signOffQC)
	h.mux.HandleFunc("POST /v1/documents/{type}/{id}/submit", h.submitForApproval)
	h.mux.HandleFunc("GET /v1/documents/{type}/{id}/approval", h.getPendingApproval)
	h.mux.HandleFunc("POST /v1/documents/{type}/{id}/approval", h.processApproval)
	h.mux.HandleFunc("POST /v1/documents/{type}/{id}/gate-pass", h.linkGatePass)
	h.mux.HandleFunc("GET /v1/approvals/overdue", h.listOverdue)

	h.mux.HandleFunc("POST /v1/stock/{operation}", h.stockOperation)
	h.mux.HandleFunc("GET /v1/stock/{item}/{warehouse}", h.stockBalance)

	h.mux.HandleFunc("POST /v1/workflows", h.createWorkflow)
	h.mux.HandleFunc("DELETE /v1/workflows/{id}", h.deleteWorkflow)
	h.mux.HandleFunc("POST /v1/rules", h.createRule)
	h.mux.HandleFunc("GET /v1/rules/{id}", h.getRule)
	h.mux.HandleFunc("PUT /v1/rules/{id}", h.updateRule)
	h.mux.HandleFunc("DELETE /v1/rules/{id}", h.deleteRule)
	h.mux.HandleFunc("POST /v1/rules/test", h.testRule)

	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(deps.Logger, h.mux)
}

// POST /v1/events — publish an event on the bus.
func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if !decode(w, r, &ev) {
		return
	}
	if err := prepareEvent(&ev); err != nil {
		writeAppError(w, err)
		return
	}
	h.Bus.Publish(r.Context(), ev)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"id": ev.ID, "type": ev.Type})
}

type ruleTestRequest struct {
	RuleID string      `json:"ruleId"`
	Event  event.Event `json:"event"`
}

// POST /v1/rules/test — publish a test event, wait, and return the most
// recent execution log (for RuleID when given).
func (h *Handler) testRule(w http.ResponseWriter, r *http.Request) {
	var req ruleTestRequest
	if !decode(w, r, &req) {
		return
	}
	if err := prepareEvent(&req.Event); err != nil {
		writeAppError(w, err)
		return
	}
	h.Bus.Publish(r.Context(), req.Event)

	select {
	case <-time.After(h.RuleTestDelay):
	case <-r.Context().Done():
		return
	}

	l, err := h.DB.LatestExecutionLog(r.Context(), req.RuleID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"eventId": req.Event.ID, "executed": false})
		return
	}
	if err != nil {
		h.internalError(w, "reading execution log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"eventId":  req.Event.ID,
		"executed": true,
		"log":      executionLogView(l),
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the database is unreachable or the event queue is
// more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.Engine.QueueUtilization()
	metrics.QueueUtilization.Set(util)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "database unavailable",
			"error":  err.Error(),
		})
		return
	}
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.Logger.Error(msg, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func prepareEvent(ev *event.Event) error {
	if ev.Type == "" {
		return apperr.Validation("type", "is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Payload == nil {
		ev.Payload = map[string]interface{}{}
	}
	return nil
}
