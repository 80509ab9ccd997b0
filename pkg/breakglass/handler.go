package breakglass

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/wopr/internal/auth"
	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/pkg/sshca"
	"github.com/wisbric/wopr/pkg/types"
)

// openRequest is the body of POST /api/v1/breakglass (spec §4.8). Reason
// must justify the access in a sentence or two, not a one-word stub.
type openRequest struct {
	BeaconID        string `json:"beacon_id" validate:"required"`
	Reason          string `json:"reason" validate:"required,min=20"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	PublicKey       string `json:"public_key,omitempty"`
}

// Handler serves the breakglass session HTTP surface. Every route here
// must be mounted behind RequireTier(TierBreakglass).
type Handler struct {
	store           *Store
	caClient        *sshca.Client
	defaultDuration time.Duration
	maxDuration     time.Duration
	logger          *slog.Logger
}

// NewHandler creates a breakglass Handler.
func NewHandler(store *Store, caClient *sshca.Client, defaultDuration, maxDuration time.Duration, logger *slog.Logger) *Handler {
	return &Handler{store: store, caClient: caClient, defaultDuration: defaultDuration, maxDuration: maxDuration, logger: logger}
}

// Routes returns a chi.Router with breakglass routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleOpen)
	r.Get("/", h.handleList)
	r.Post("/{id}/revoke", h.handleRevoke)
	return r
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req openRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	duration := h.defaultDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}
	if duration > h.maxDuration {
		duration = h.maxDuration
	}

	now := time.Now()
	session := types.BreakglassSession{
		ID:             uuid.New(),
		UserUID:        identity.UID,
		UserName:       identity.Username,
		UserEmail:      identity.Email,
		TargetBeaconID: req.BeaconID,
		StartedAt:      now,
		ExpiresAt:      now.Add(duration),
		Reason:         req.Reason,
		Status:         types.BreakglassActive,
	}

	if err := h.store.Open(r.Context(), session); err != nil {
		if err == ErrActiveSessionExists {
			httpserver.RespondError(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		h.logger.Error("opening breakglass session", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to open breakglass session")
		return
	}

	cert, err := h.caClient.Sign(r.Context(), forwardedHeaders(r), sshca.SignRequest{
		BeaconID:            req.BeaconID,
		Tier:                string(types.TierBreakglass),
		PublicKey:           req.PublicKey,
		BreakglassSessionID: session.ID.String(),
	})
	if err != nil {
		h.logger.Error("requesting breakglass certificate", "error", err)
		if rbErr := h.store.Rollback(r.Context(), session.ID); rbErr != nil {
			h.logger.Error("rolling back breakglass session after cert failure", "error", rbErr)
		}
		httpserver.RespondError(w, http.StatusBadGateway, "ca_unavailable", "failed to issue breakglass certificate")
		return
	}

	if err := h.store.AttachCertSerial(r.Context(), session.ID, cert.Serial); err != nil {
		h.logger.Warn("attaching cert serial to session", "error", err)
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"session":     session,
		"certificate": cert,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("listing breakglass sessions", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list breakglass sessions")
		return
	}
	httpserver.Respond(w, http.StatusOK, sessions)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid session id")
		return
	}
	if err := h.store.Revoke(r.Context(), id); err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// forwardedHeaders copies the identity headers the edge authenticator set
// on the inbound request, so the CA's own auth middleware can re-derive
// the same Identity for its tier check.
func forwardedHeaders(r *http.Request) map[string]string {
	headers := map[string]string{}
	for _, h := range []string{"X-Authentik-UID", "X-Authentik-Username", "X-Authentik-Email", "X-Authentik-Groups"} {
		if v := r.Header.Get(h); v != "" {
			headers[h] = v
		}
	}
	return headers
}
