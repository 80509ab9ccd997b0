// Package audit records every authenticated gateway request synchronously
// (spec §4.8: "every authenticated request is recorded in the audit log
// with body hash, method, path, status, duration"). Unlike the teacher's
// buffered multi-tenant writer, there is exactly one audit table here and
// no tolerance for dropped entries on shutdown, so writes happen inline on
// the request goroutine rather than through a channel.
package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/wopr/internal/auth"
	"github.com/wisbric/wopr/internal/telemetry"
	"github.com/wisbric/wopr/pkg/types"
)

// Writer persists audit entries to the shared gateway/CA Postgres store.
type Writer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewWriter creates an audit Writer.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{pool: pool, logger: logger}
}

// Record writes one audit entry. Failures are logged, not propagated — an
// audit-log outage must never turn into a 500 for the underlying request.
func (w *Writer) Record(ctx context.Context, entry types.AuditEntry) {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			w.logger.Warn("marshaling audit metadata", "error", err)
		}
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := w.pool.Exec(writeCtx, `
		INSERT INTO audit_log
			(timestamp, actor_uid, actor_username, actor_email, action,
			 target_beacon_id, access_tier, request_method, request_path,
			 body_hash, response_status, duration_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.Timestamp, entry.ActorUID, entry.ActorUsername, entry.ActorEmail, entry.Action,
		entry.TargetBeaconID, string(entry.AccessTier), entry.RequestMethod, entry.RequestPath,
		entry.BodyHash, entry.ResponseStatus, entry.DurationMS, metadata,
	)
	if err != nil {
		w.logger.Error("writing audit log entry", "error", err, "action", entry.Action)
		return
	}
	telemetry.GatewayAuditEntriesTotal.WithLabelValues(entry.Action).Inc()
}

// Middleware wraps every authenticated request with a synchronous audit
// record, capturing method, path, status, duration, and a hash of the
// request body (never the body itself).
func Middleware(w *Writer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			start := time.Now()
			bodyHash := hashBody(r)
			sw := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			id := auth.FromContext(r.Context())
			if id == nil {
				return
			}

			entry := types.AuditEntry{
				Timestamp:      start,
				ActorUID:       id.UID,
				ActorUsername:  id.Username,
				ActorEmail:     id.Email,
				Action:         r.Method + " " + routeTemplate(r),
				AccessTier:     id.Tier,
				RequestMethod:  r.Method,
				RequestPath:    r.URL.Path,
				BodyHash:       bodyHash,
				ResponseStatus: sw.status,
				DurationMS:     float64(time.Since(start).Microseconds()) / 1000,
			}
			if beaconID := beaconIDFromPath(r.URL.Path); beaconID != "" {
				entry.TargetBeaconID = &beaconID
			}

			w.Record(r.Context(), entry)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// hashBody reads and re-attaches the request body, returning a hex SHA-256
// digest of its contents. An empty or absent body hashes to "".
func hashBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// routeTemplate returns the request path with beacon-id-shaped segments
// collapsed, so the action label doesn't explode in cardinality.
func routeTemplate(r *http.Request) string {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i, seg := range segments {
		if looksLikeID(seg) {
			segments[i] = "{id}"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func looksLikeID(seg string) bool {
	return len(seg) >= 8 && strings.ContainsAny(seg, "-0123456789")
}

// beaconIDFromPath extracts a beacon id from paths shaped like
// /api/v1/beacons/{id}/....
func beaconIDFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if seg == "beacons" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
