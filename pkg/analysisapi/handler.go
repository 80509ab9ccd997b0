// Package analysisapi serves a beacon's own HTTP API over its analysis
// engine (spec §6.1): status, escalation review, on-demand cycles, and
// history.
package analysisapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/pkg/analysisengine"
	"github.com/wisbric/wopr/pkg/analysisstore"
	"github.com/wisbric/wopr/pkg/executor"
	"github.com/wisbric/wopr/pkg/llm"
	"github.com/wisbric/wopr/pkg/types"
)

const defaultListLimit = 50

// statusResponse is the body of GET /api/v1/ai/status.
type statusResponse struct {
	EngineRunning       bool       `json:"engine_running"`
	InferenceReachable  bool       `json:"inference_reachable"`
	Model               string     `json:"model"`
	TotalRuns           int        `json:"total_runs"`
	TotalAutoFixes      int        `json:"total_auto_fixes"`
	TotalEscalations    int        `json:"total_escalations"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	RemainingHourBudget int        `json:"remaining_hour_budget"`
}

// Handler serves the beacon's AI operations API.
type Handler struct {
	engine                *analysisengine.Engine
	store                 *analysisstore.Store
	llmClient             *llm.Client
	exec                  *executor.Executor
	maxAutoActionsPerHour int
	logger                *slog.Logger
}

// NewHandler builds an analysisapi Handler.
func NewHandler(engine *analysisengine.Engine, store *analysisstore.Store, llmClient *llm.Client, exec *executor.Executor, maxAutoActionsPerHour int, logger *slog.Logger) *Handler {
	return &Handler{
		engine:                engine,
		store:                 store,
		llmClient:             llmClient,
		exec:                  exec,
		maxAutoActionsPerHour: maxAutoActionsPerHour,
		logger:                logger,
	}
}

// Routes returns a chi.Router with the AI operations routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.handleStatus)
	r.Get("/escalations", h.handleListEscalations)
	r.Post("/escalations/{id}/approve", h.handleApprove)
	r.Post("/escalations/{id}/reject", h.handleReject)
	r.Post("/analyze-now", h.handleAnalyzeNow)
	r.Get("/history", h.handleHistory)
	r.Get("/actions", h.handleActions)
	return r
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(0)
	if err != nil {
		h.logger.Error("listing runs for status", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to read analysis history")
		return
	}

	actions, err := h.store.ListAutoActions(0)
	if err != nil {
		h.logger.Error("listing auto actions for status", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to read action history")
		return
	}

	pending, err := h.store.ListEscalations(types.EscalationPending, 0)
	if err != nil {
		h.logger.Error("listing escalations for status", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to read escalations")
		return
	}

	used, err := h.store.CountAutoActionsSince(time.Now().Add(-time.Hour))
	if err != nil {
		h.logger.Error("counting auto actions for status", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to compute budget")
		return
	}
	remaining := h.maxAutoActionsPerHour - used
	if remaining < 0 {
		remaining = 0
	}

	resp := statusResponse{
		EngineRunning:       h.engine.IsRunning(),
		InferenceReachable:  h.llmClient != nil,
		TotalRuns:           len(runs),
		TotalAutoFixes:      len(actions),
		TotalEscalations:    len(pending),
		RemainingHourBudget: remaining,
	}
	if h.llmClient != nil {
		resp.Model = h.llmClient.Model
	}
	if len(runs) > 0 {
		resp.LastRunAt = &runs[0].StartedAt
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

// handleListEscalations responds with a bare JSON array: the gateway's
// escalation aggregator (pkg/gateway.Aggregator.fetchOne) decodes this
// endpoint directly into []types.Escalation from every online beacon, so
// its shape can't change to an envelope without breaking that contract.
func (h *Handler) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	status := types.EscalationStatus(r.URL.Query().Get("status"))
	limit := parseLimit(r, defaultListLimit)

	escalations, err := h.store.ListEscalations(status, limit)
	if err != nil {
		h.logger.Error("listing escalations", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list escalations")
		return
	}
	if escalations == nil {
		escalations = []types.Escalation{}
	}
	httpserver.Respond(w, http.StatusOK, escalations)
}

// seekPastCursor drops every item up to and including the cursor position,
// assuming items are already sorted newest-first the way the store returns
// them. The run history endpoint uses it; the escalation list is a bare
// limited array and does not.
func seekPastCursor[T any](items []T, after *httpserver.Cursor, cursorFn func(T) httpserver.Cursor) []T {
	if after == nil {
		return items
	}
	for i, item := range items {
		c := cursorFn(item)
		if c.CreatedAt.Equal(after.CreatedAt) && c.ID == after.ID {
			return items[i+1:]
		}
		if c.CreatedAt.Before(after.CreatedAt) {
			return items[i:]
		}
	}
	return nil
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	esc, ok := h.loadPendingEscalation(w, r)
	if !ok {
		return
	}

	result := h.exec.Execute(r.Context(), esc.ProposedAction)
	if err := h.store.AppendAutoAction(types.AutoActionLog{
		ID:            uuid.New(),
		AnalysisRunID: esc.AnalysisRunID,
		ExecutedAt:    time.Now(),
		Service:       esc.Service,
		Action:        esc.ProposedAction,
		Success:       result.Success,
		Output:        result.Output,
	}); err != nil {
		h.logger.Error("logging approved action", "error", err)
	}

	esc.Status = types.EscalationApproved
	now := time.Now()
	esc.ResolvedAt = &now
	resolvedBy := "operator"
	esc.ResolvedBy = &resolvedBy
	if err := h.store.UpdateEscalation(*esc); err != nil {
		h.logger.Error("updating approved escalation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update escalation")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"escalation": esc, "result": result})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	esc, ok := h.loadPendingEscalation(w, r)
	if !ok {
		return
	}

	esc.Status = types.EscalationRejected
	now := time.Now()
	esc.ResolvedAt = &now
	resolvedBy := "operator"
	esc.ResolvedBy = &resolvedBy
	if err := h.store.UpdateEscalation(*esc); err != nil {
		h.logger.Error("updating rejected escalation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update escalation")
		return
	}

	httpserver.Respond(w, http.StatusOK, esc)
}

func (h *Handler) loadPendingEscalation(w http.ResponseWriter, r *http.Request) (*types.Escalation, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid escalation id")
		return nil, false
	}

	esc, err := h.store.GetEscalation(id)
	if err != nil {
		h.logger.Error("getting escalation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get escalation")
		return nil, false
	}
	if esc == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "escalation not found")
		return nil, false
	}
	if esc.Status != types.EscalationPending {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "escalation is not pending")
		return nil, false
	}
	return esc, true
}

func (h *Handler) handleAnalyzeNow(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.RunCycle(r.Context())
	if err != nil {
		h.logger.Error("running on-demand analysis cycle", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "analysis cycle failed")
		return
	}
	httpserver.Respond(w, http.StatusOK, run)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	runs, err := h.store.ListRuns(0)
	if err != nil {
		h.logger.Error("listing run history", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list run history")
		return
	}

	runCursor := func(run types.AnalysisRun) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: run.StartedAt, ID: run.ID}
	}
	runs = seekPastCursor(runs, params.After, runCursor)
	if len(runs) > params.Limit+1 {
		runs = runs[:params.Limit+1]
	}

	page := httpserver.NewCursorPage(runs, params.Limit, runCursor)
	if page.Items == nil {
		page.Items = []types.AnalysisRun{}
	}
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultListLimit)
	actions, err := h.store.ListAutoActions(limit)
	if err != nil {
		h.logger.Error("listing auto action history", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list action history")
		return
	}
	if actions == nil {
		actions = []types.AutoActionLog{}
	}
	httpserver.Respond(w, http.StatusOK, actions)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
