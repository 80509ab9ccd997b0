package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/pkg/types"
)

// Handler serves the breakglass-only audit log query endpoint
// (GET /api/v1/audit/logs).
type Handler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(pool *pgxpool.Pool, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted. The caller is
// responsible for gating this router behind RequireTier(TierBreakglass).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var total int
	if err := h.pool.QueryRow(r.Context(), `SELECT count(*) FROM audit_log`).Scan(&total); err != nil {
		h.logger.Error("counting audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	rows, err := h.pool.Query(r.Context(), `
		SELECT id, timestamp, actor_uid, actor_username, actor_email, action,
		       target_beacon_id, access_tier, request_method, request_path,
		       body_hash, response_status, duration_ms, metadata
		FROM audit_log
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2`, params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}
	defer rows.Close()

	entries := make([]types.AuditEntry, 0, params.PageSize)
	for rows.Next() {
		var e types.AuditEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorUID, &e.ActorUsername, &e.ActorEmail, &e.Action,
			&e.TargetBeaconID, &e.AccessTier, &e.RequestMethod, &e.RequestPath,
			&e.BodyHash, &e.ResponseStatus, &e.DurationMS, &metadata); err != nil {
			h.logger.Error("scanning audit log row", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
			return
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &e.Metadata)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("iterating audit log rows", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(entries, params, total))
}
