package sshca

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/wopr/pkg/types"
)

// SessionReader reads breakglass session status from the shared Postgres
// store. The CA never writes to this table — only the gateway does.
type SessionReader struct {
	pool *pgxpool.Pool
}

// NewSessionReader builds a SessionReader.
func NewSessionReader(pool *pgxpool.Pool) *SessionReader {
	return &SessionReader{pool: pool}
}

// ActiveSession returns the session if it exists and is currently active,
// or nil if it doesn't exist, has expired, or was revoked.
func (r *SessionReader) ActiveSession(ctx context.Context, sessionID uuid.UUID) (*types.BreakglassSession, error) {
	var s types.BreakglassSession
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, beacon_id, user_uid, reason, status, created_at, expires_at
		FROM breakglass_sessions WHERE id = $1 AND status = 'active' AND expires_at > now()`, sessionID,
	).Scan(&s.ID, &s.TargetBeaconID, &s.UserUID, &s.Reason, &status, &s.StartedAt, &s.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying breakglass session: %w", err)
	}
	s.Status = types.BreakglassStatus(status)
	return &s, nil
}
