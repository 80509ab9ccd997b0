package registry

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/pkg/types"
)

// registerRequest is the body a beacon POSTs on self-registration.
type registerRequest struct {
	BeaconID  string `json:"beacon_id" validate:"required"`
	Domain    string `json:"domain" validate:"required"`
	EngineURL string `json:"engine_url" validate:"required,url"`
	Bundle    string `json:"bundle" validate:"required"`
	Version   string `json:"version" validate:"required"`
	ClaimedIP string `json:"claimed_ip"`
}

// heartbeatRequest is the body a beacon POSTs periodically.
type heartbeatRequest struct {
	EngineRunning bool `json:"engine_running"`
}

// Handler serves the Beacon Registry HTTP surface.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a registry Handler.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes returns a chi.Router with registry routes mounted. Registration
// and heartbeat are left unauthenticated (a beacon has no operator identity
// to forward, only its source IP); List/Get run behind the supplied
// middleware chain, applied in order, so the caller can gate them with
// auth.Middleware + auth.RequireTier(TierDiag).
func (h *Handler) Routes(operatorOnly ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleRegister)
	r.Post("/{beaconID}/heartbeat", h.handleHeartbeat)
	r.With(operatorOnly...).Get("/", h.handleList)
	r.With(operatorOnly...).Get("/{beaconID}", h.handleGet)
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sourceIP := clientIP(r)
	if req.ClaimedIP != "" && req.ClaimedIP != sourceIP {
		h.logger.Warn("beacon claimed IP disagrees with observed source IP",
			"beacon_id", req.BeaconID, "claimed_ip", req.ClaimedIP, "source_ip", sourceIP)
	}

	beacon := types.Beacon{
		BeaconID:     req.BeaconID,
		Domain:       req.Domain,
		EngineURL:    req.EngineURL,
		PublicIP:     sourceIP,
		Bundle:       req.Bundle,
		Version:      req.Version,
		RegisteredAt: time.Now(),
		LastSeen:     time.Now(),
		Status:       types.BeaconOnline,
	}
	if err := h.store.Upsert(r.Context(), beacon); err != nil {
		h.logger.Error("registering beacon", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to register beacon")
		return
	}

	httpserver.Respond(w, http.StatusOK, beacon)
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	beaconID := chi.URLParam(r, "beaconID")

	req := heartbeatRequest{EngineRunning: true}
	if r.ContentLength > 0 {
		if err := httpserver.Decode(r, &req); err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}

	status := types.BeaconOnline
	if !req.EngineRunning {
		status = types.BeaconDegraded
	}

	if err := h.store.Heartbeat(r.Context(), beaconID, status); err != nil {
		h.logger.Warn("heartbeat for unknown beacon", "beacon_id", beaconID, "error", err)
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "beacon not registered")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	beacons, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("listing beacons", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list beacons")
		return
	}
	httpserver.Respond(w, http.StatusOK, beacons)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	beaconID := chi.URLParam(r, "beaconID")
	beacon, err := h.store.Get(r.Context(), beaconID)
	if err != nil {
		h.logger.Error("getting beacon", "beacon_id", beaconID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get beacon")
		return
	}
	if beacon == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "beacon not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, beacon)
}

// clientIP extracts the client IP address, preferring X-Forwarded-For and
// X-Real-IP over RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
