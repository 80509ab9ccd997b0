// Package registry implements the Beacon Registry (spec §4.7): beacon
// self-registration/heartbeat against Postgres, and an ephemeral
// online/offline status cache in Redis so reads don't hit Postgres on
// every gateway aggregation fan-out.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/wopr/pkg/types"
)

// heartbeatTTL bounds how long a beacon is considered online without a
// fresh heartbeat; set to twice the nominal heartbeat interval (60s) so a
// single missed beat doesn't flap the status.
const heartbeatTTL = 2 * time.Minute

// Store persists beacon registration rows in Postgres and caches liveness
// in Redis.
type Store struct {
	pool  *pgxpool.Pool
	cache *redis.Client
}

// New builds a Store.
func New(pool *pgxpool.Pool, cache *redis.Client) *Store {
	return &Store{pool: pool, cache: cache}
}

// Upsert inserts or updates a beacon's registration row, stamping
// last_seen and status. It does not compare claimed and observed IPs; the
// registration handler logs a warning on a mismatch and still calls Upsert.
func (s *Store) Upsert(ctx context.Context, b types.Beacon) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO beacons (beacon_id, domain, engine_url, bundle, version, source_ip, status, last_seen, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (beacon_id) DO UPDATE SET
			domain = EXCLUDED.domain,
			engine_url = EXCLUDED.engine_url,
			bundle = EXCLUDED.bundle,
			version = EXCLUDED.version,
			source_ip = EXCLUDED.source_ip,
			status = EXCLUDED.status,
			last_seen = EXCLUDED.last_seen`,
		b.BeaconID, b.Domain, b.EngineURL, b.Bundle, b.Version, b.PublicIP, string(b.Status), b.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("upserting beacon %s: %w", b.BeaconID, err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, heartbeatKey(b.BeaconID), string(b.Status), heartbeatTTL)
	}
	return nil
}

// Heartbeat updates a beacon's last_seen and status without touching its
// registration metadata.
func (s *Store) Heartbeat(ctx context.Context, beaconID string, status types.BeaconStatus) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE beacons SET status = $2, last_seen = $3 WHERE beacon_id = $1`,
		beaconID, string(status), now,
	)
	if err != nil {
		return fmt.Errorf("updating heartbeat for %s: %w", beaconID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("heartbeat for unregistered beacon %s", beaconID)
	}

	if s.cache != nil {
		s.cache.Set(ctx, heartbeatKey(beaconID), string(status), heartbeatTTL)
	}
	return nil
}

// Get fetches one beacon by id, with its status refreshed from the
// liveness cache when available (a beacon whose cache entry has expired
// is reported offline even if the stale Postgres row still says online).
func (s *Store) Get(ctx context.Context, beaconID string) (*types.Beacon, error) {
	b, err := s.scanOne(ctx, `
		SELECT beacon_id, domain, engine_url, source_ip, bundle, version, registered_at, last_seen, status
		FROM beacons WHERE beacon_id = $1`, beaconID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	s.applyLiveness(ctx, b)
	return b, nil
}

// List returns every registered beacon, status refreshed from the
// liveness cache.
func (s *Store) List(ctx context.Context) ([]types.Beacon, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT beacon_id, domain, engine_url, source_ip, bundle, version, registered_at, last_seen, status
		FROM beacons ORDER BY beacon_id`)
	if err != nil {
		return nil, fmt.Errorf("listing beacons: %w", err)
	}
	defer rows.Close()

	var beacons []types.Beacon
	for rows.Next() {
		var b types.Beacon
		var status string
		if err := rows.Scan(&b.BeaconID, &b.Domain, &b.EngineURL, &b.PublicIP, &b.Bundle, &b.Version, &b.RegisteredAt, &b.LastSeen, &status); err != nil {
			return nil, fmt.Errorf("scanning beacon row: %w", err)
		}
		b.Status = types.BeaconStatus(status)
		s.applyLiveness(ctx, &b)
		beacons = append(beacons, b)
	}
	return beacons, rows.Err()
}

// Online returns only the beacons currently considered online, for
// gateway aggregation fan-out.
func (s *Store) Online(ctx context.Context) ([]types.Beacon, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	online := make([]types.Beacon, 0, len(all))
	for _, b := range all {
		if b.Status == types.BeaconOnline {
			online = append(online, b)
		}
	}
	return online, nil
}

func (s *Store) scanOne(ctx context.Context, query string, args ...any) (*types.Beacon, error) {
	var b types.Beacon
	var status string
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&b.BeaconID, &b.Domain, &b.EngineURL, &b.PublicIP, &b.Bundle, &b.Version, &b.RegisteredAt, &b.LastSeen, &status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying beacon: %w", err)
	}
	b.Status = types.BeaconStatus(status)
	return &b, nil
}

// applyLiveness overrides b.Status with the Redis cache entry when present.
// A missing cache entry (expired TTL) means the beacon has not heartbeat
// recently enough to be trusted as online, so Status becomes offline. If
// Redis itself returns an error, Status is left as Postgres reported it.
func (s *Store) applyLiveness(ctx context.Context, b *types.Beacon) {
	if s.cache == nil {
		return
	}
	val, err := s.cache.Get(ctx, heartbeatKey(b.BeaconID)).Result()
	if err != nil {
		if err == redis.Nil {
			b.Status = types.BeaconOffline
		}
		return
	}
	b.Status = types.BeaconStatus(val)
}

func heartbeatKey(beaconID string) string {
	return "wopr:beacon:heartbeat:" + beaconID
}
