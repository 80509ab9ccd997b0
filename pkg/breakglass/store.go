// Package breakglass implements breakglass session lifecycle management
// (spec §4.8): opening a time-bounded emergency access grant, listing and
// revoking sessions, and a minute-granularity sweeper that expires stale
// sessions.
package breakglass

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/wopr/pkg/types"
)

// postgresUniqueViolation is the SQLSTATE code Postgres returns when an
// INSERT collides with breakglass_sessions' partial unique index on
// (beacon_id, user_uid) WHERE status = 'active'.
const postgresUniqueViolation = "23505"

// ErrActiveSessionExists indicates the (user, beacon) pair already has an
// active session — the database's partial unique index is the source of
// truth; this error wraps its violation.
var ErrActiveSessionExists = fmt.Errorf("an active breakglass session already exists for this user and beacon")

// Store persists breakglass sessions in the shared Postgres database.
type Store struct {
	pool *pgxpool.Pool
}

// New builds a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open creates a new active session. Returns ErrActiveSessionExists if one
// active session already exists for this (user, beacon) pair.
func (s *Store) Open(ctx context.Context, session types.BreakglassSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO breakglass_sessions (id, beacon_id, user_uid, user_name, user_email, reason, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.TargetBeaconID, session.UserUID, session.UserName, session.UserEmail, session.Reason,
		string(types.BreakglassActive), session.StartedAt, session.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrActiveSessionExists
		}
		return fmt.Errorf("opening breakglass session: %w", err)
	}
	return nil
}

// AttachCertSerial records the serial of the certificate issued for this
// session, for audit correlation.
func (s *Store) AttachCertSerial(ctx context.Context, id uuid.UUID, serial uint64) error {
	_, err := s.pool.Exec(ctx, `UPDATE breakglass_sessions SET certificate_serial = $2 WHERE id = $1`, id, fmt.Sprintf("%d", serial))
	if err != nil {
		return fmt.Errorf("attaching cert serial: %w", err)
	}
	return nil
}

// Rollback deletes a session row outright — used only when certificate
// issuance fails on the same request that opened the session, so the
// session never existed from the caller's point of view.
func (s *Store) Rollback(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM breakglass_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("rolling back breakglass session: %w", err)
	}
	return nil
}

// Revoke marks an active session revoked.
func (s *Store) Revoke(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE breakglass_sessions SET status = $2, ended_at = $3
		WHERE id = $1 AND status = $4`,
		id, string(types.BreakglassRevoked), now, string(types.BreakglassActive),
	)
	if err != nil {
		return fmt.Errorf("revoking breakglass session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no active breakglass session %s to revoke", id)
	}
	return nil
}

// List returns every breakglass session, most recent first.
func (s *Store) List(ctx context.Context) ([]types.BreakglassSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, beacon_id, user_uid, user_name, user_email, reason, status, certificate_serial, created_at, expires_at, ended_at
		FROM breakglass_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing breakglass sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.BreakglassSession
	for rows.Next() {
		var sess types.BreakglassSession
		var status string
		var serial *string
		if err := rows.Scan(&sess.ID, &sess.TargetBeaconID, &sess.UserUID, &sess.UserName, &sess.UserEmail, &sess.Reason, &status, &serial, &sess.StartedAt, &sess.ExpiresAt, &sess.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning breakglass session row: %w", err)
		}
		sess.Status = types.BreakglassStatus(status)
		if serial != nil {
			if parsed, err := strconv.ParseUint(*serial, 10, 64); err == nil {
				sess.SSHCertSerial = &parsed
			}
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ExpireStale marks every active session whose expires_at is in the past
// as expired, stamping ended_at. Returns the number of sessions expired.
func (s *Store) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE breakglass_sessions SET status = $1, ended_at = $2
		WHERE status = $3 AND expires_at < $2`,
		string(types.BreakglassExpired), now, string(types.BreakglassActive),
	)
	if err != nil {
		return 0, fmt.Errorf("expiring stale breakglass sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountActive returns the number of currently active sessions, for the
// breakglass_sessions_active gauge.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM breakglass_sessions WHERE status = $1`, string(types.BreakglassActive)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active breakglass sessions: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}
	return false
}
