package sshca

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/wopr/internal/auth"
	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/internal/telemetry"
	"github.com/wisbric/wopr/pkg/types"
)

// signRequest is the body of POST /api/v1/sign (spec §4.6).
type signRequest struct {
	BeaconID            string `json:"beacon_id" validate:"required"`
	Tier                string `json:"tier" validate:"required,oneof=diag remediate breakglass"`
	PublicKey           string `json:"public_key,omitempty"`
	BreakglassSessionID string `json:"breakglass_session_id,omitempty"`
}

// ValidityConfig bundles the three tiers' validity windows, read from
// CAConfig by the caller.
type ValidityConfig struct {
	Diag       time.Duration
	Remediate  time.Duration
	Breakglass time.Duration
}

// Handler serves the SSH Certificate Authority HTTP API.
type Handler struct {
	signer   *Signer
	sessions *SessionReader
	validity ValidityConfig
	logger   *slog.Logger
}

// NewHandler creates a CA Handler.
func NewHandler(signer *Signer, sessions *SessionReader, validity ValidityConfig, logger *slog.Logger) *Handler {
	return &Handler{signer: signer, sessions: sessions, validity: validity, logger: logger}
}

// Routes returns a chi.Router with the CA's routes mounted. /sign runs
// behind signMiddleware (an identity-deriving chain such as auth.Middleware)
// since handleSign checks the caller's tier itself; ca-public-key and health
// stay open, since a beacon fetches the CA public key before it has any
// forwarded identity.
func (h *Handler) Routes(signMiddleware ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(signMiddleware...).Post("/sign", h.handleSign)
	r.Get("/ca-public-key", h.handleCAPublicKey)
	r.Get("/health", h.handleHealth)
	return r
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req signRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	tier := types.Tier(req.Tier)

	// The caller must belong to the tier's group; membership is cumulative,
	// so a caller's own tier must be at least as high as the requested one.
	if identity.Tier.Level() < tier.Level() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "caller does not hold the requested tier")
		return
	}

	validity := ValidityByTier(tier, h.validity.Diag, h.validity.Remediate, h.validity.Breakglass)

	if tier == types.TierBreakglass {
		sessionID, err := uuid.Parse(req.BreakglassSessionID)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "breakglass_session_id is required for tier breakglass")
			return
		}
		session, err := h.sessions.ActiveSession(r.Context(), sessionID)
		if err != nil {
			h.logger.Error("checking breakglass session", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to verify breakglass session")
			return
		}
		if session == nil {
			httpserver.RespondError(w, http.StatusForbidden, "forbidden", "breakglass session is not active")
			return
		}
		if remaining := time.Until(session.ExpiresAt); remaining < validity {
			validity = remaining
		}
	}

	cert, err := h.signer.Issue(IssueRequest{
		Requester:    identity.Username,
		BeaconID:     req.BeaconID,
		Tier:         tier,
		PublicKeySSH: req.PublicKey,
	}, validity)
	if err != nil {
		h.logger.Error("issuing certificate", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to issue certificate")
		return
	}

	telemetry.SSHCACertificatesIssuedTotal.WithLabelValues(string(tier)).Inc()
	httpserver.Respond(w, http.StatusOK, cert)
}

func (h *Handler) handleCAPublicKey(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]string{
		"public_key": h.signer.PublicKeyAuthorizedFormat(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
