package gateway

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/wopr/internal/auth"
	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/pkg/registry"
	"github.com/wisbric/wopr/pkg/sshca"
	"github.com/wisbric/wopr/pkg/types"
)

// executeRequest is the body of POST /api/v1/remediation/{id}/execute.
type executeRequest struct {
	BeaconID string            `json:"beacon_id" validate:"required"`
	Values   map[string]string `json:"values,omitempty"`
}

// Handler serves the gateway's diagnostics, remediation, and aggregation
// HTTP surface (spec §4.8). Breakglass has its own Handler in
// pkg/breakglass and is mounted alongside this one.
type Handler struct {
	registry   *registry.Store
	caClient   *sshca.Client
	runner     *RemoteRunner
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewHandler builds a gateway Handler.
func NewHandler(reg *registry.Store, caClient *sshca.Client, runner *RemoteRunner, aggregator *Aggregator, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, caClient: caClient, runner: runner, aggregator: aggregator, logger: logger}
}

// DiagnosticsRoutes mounts the diag-tier-and-above read-only endpoints.
func (h *Handler) DiagnosticsRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/beacons", h.handleListBeacons)
	r.Get("/beacons/{beaconID}/health", h.handleBeaconHealth)
	r.Get("/beacons/{beaconID}/services", h.handleBeaconServices)
	r.Get("/beacons/{beaconID}/services/{service}/logs", h.handleServiceLogs)
	return r
}

// RemediationRoutes mounts the remediate-tier-and-above execution endpoints.
// Each action's own RequiredTier is still checked per-action inside
// handleExecute, independently of whatever tier gates the route itself.
func (h *Handler) RemediationRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListCatalogue)
	r.Post("/{id}/execute", h.handleExecute)
	return r
}

// AggregationRoutes mounts the cross-fleet escalation view.
func (h *Handler) AggregationRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleAggregate)
	return r
}

func (h *Handler) handleListBeacons(w http.ResponseWriter, r *http.Request) {
	beacons, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("listing beacons", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list beacons")
		return
	}
	httpserver.Respond(w, http.StatusOK, beacons)
}

func (h *Handler) handleBeaconHealth(w http.ResponseWriter, r *http.Request) {
	h.runDiagCommand(w, r, []string{"uptime"})
}

func (h *Handler) handleBeaconServices(w http.ResponseWriter, r *http.Request) {
	h.runDiagCommand(w, r, []string{"systemctl", "list-units", "--type=service", "--state=running"})
}

func (h *Handler) handleServiceLogs(w http.ResponseWriter, r *http.Request) {
	service, err := SanitizeServiceName(chi.URLParam(r, "service"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	since, err := SanitizeSinceExpression(r.URL.Query().Get("since"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	h.runDiagCommand(w, r, []string{"journalctl", "-u", service, "--since", "-" + since, "--no-pager"})
}

// runDiagCommand mints a diag-tier certificate for the caller and runs a
// fixed argv on the named beacon through the forced shell wrapper.
func (h *Handler) runDiagCommand(w http.ResponseWriter, r *http.Request, argv []string) {
	beaconID := chi.URLParam(r, "beaconID")
	beacon, err := h.registry.Get(r.Context(), beaconID)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "beacon not found")
		return
	}

	cert, err := h.caClient.Sign(r.Context(), forwardedHeaders(r), sshca.SignRequest{
		BeaconID: beaconID,
		Tier:     string(types.TierDiag),
	})
	if err != nil {
		h.logger.Error("requesting diag certificate", "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "ca_unavailable", "failed to issue diagnostic certificate")
		return
	}

	output, err := h.runner.Run(r.Context(), *beacon, cert, argv)
	if err != nil {
		h.logger.Error("running diagnostic command", "beacon_id", beaconID, "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "beacon_unreachable", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"output": output})
}

func (h *Handler) handleListCatalogue(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	httpserver.Respond(w, http.StatusOK, Catalogue)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	action, ok := ByID(chi.URLParam(r, "id"))
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "unknown remediation action")
		return
	}
	// The action's own required tier gates execution independently of the
	// route's tier gate (spec §4.8): remediate-tier routes still reject a
	// diag-only caller trying to run a remediate-tier action would never
	// happen here since the route itself requires remediate, but a future
	// action with a higher tier than its route is still caught.
	if identity.Tier.Level() < action.RequiredTier.Level() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient tier for this action")
		return
	}

	var req executeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	argv, err := action.Render(req.Values)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	beacon, err := h.registry.Get(r.Context(), req.BeaconID)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "beacon not found")
		return
	}

	cert, err := h.caClient.Sign(r.Context(), forwardedHeaders(r), sshca.SignRequest{
		BeaconID: req.BeaconID,
		Tier:     string(types.TierRemediate),
	})
	if err != nil {
		h.logger.Error("requesting remediate certificate", "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "ca_unavailable", "failed to issue remediation certificate")
		return
	}

	output, err := h.runner.Run(r.Context(), *beacon, cert, argv)
	if err != nil {
		h.logger.Error("executing remediation action", "action", action.ID, "beacon_id", req.BeaconID, "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "beacon_unreachable", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"output": output})
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	beacons, err := h.registry.Online(r.Context())
	if err != nil {
		h.logger.Error("listing online beacons", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list beacons")
		return
	}

	result := h.aggregator.Aggregate(r.Context(), beacons, limit)
	httpserver.Respond(w, http.StatusOK, result)
}

// forwardedHeaders copies the identity headers the edge authenticator set
// on the inbound request, so the CA's own auth middleware can re-derive
// the same Identity for its tier check.
func forwardedHeaders(r *http.Request) map[string]string {
	headers := map[string]string{}
	for _, hdr := range []string{"X-Authentik-UID", "X-Authentik-Username", "X-Authentik-Email", "X-Authentik-Groups"} {
		if v := r.Header.Get(hdr); v != "" {
			headers[hdr] = v
		}
	}
	return headers
}
