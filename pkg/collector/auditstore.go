package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wisbric/wopr/pkg/types"
)

const auditStoreRowCap = 50

// CollectAuditStores fetches recent error/critical rows from each
// configured service's audit store, ordered by timestamp desc and capped
// at auditStoreRowCap per service. auditDBs maps service name to a
// Postgres connection URL. Any failure connecting to or querying a given
// store is swallowed for that service; the collector never raises.
func CollectAuditStores(ctx context.Context, auditDBs map[string]string, window time.Duration, logger *slog.Logger) []types.ErrorRecord {
	cutoff := time.Now().Add(-window)
	var records []types.ErrorRecord

	for service, dsn := range auditDBs {
		rows := collectOne(ctx, service, dsn, cutoff, logger)
		records = append(records, rows...)
	}
	return records
}

func collectOne(ctx context.Context, service, dsn string, cutoff time.Time, logger *slog.Logger) []types.ErrorRecord {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connCtx, dsn)
	if err != nil {
		logger.Warn("audit store connect failed", "service", service, "error", err)
		return nil
	}
	defer pool.Close()

	rows, err := pool.Query(connCtx, `
		SELECT severity, message, occurred_at, request_path, request_status, duration_ms
		FROM errors
		WHERE severity IN ('error', 'critical') AND occurred_at > $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, cutoff, auditStoreRowCap)
	if err != nil {
		logger.Warn("audit store query failed", "service", service, "error", err)
		return nil
	}
	defer rows.Close()

	var records []types.ErrorRecord
	for rows.Next() {
		var (
			severity      string
			message       string
			occurredAt    time.Time
			requestPath   *string
			requestStatus *int
			durationMS    *float64
		)
		if err := rows.Scan(&severity, &message, &occurredAt, &requestPath, &requestStatus, &durationMS); err != nil {
			continue
		}
		records = append(records, types.ErrorRecord{
			Source:        types.SourceAuditStore,
			Service:       service,
			Severity:      types.Severity(severity),
			Timestamp:     occurredAt,
			Message:       message,
			RequestPath:   requestPath,
			RequestStatus: requestStatus,
			DurationMS:    durationMS,
		})
	}
	if err := rows.Err(); err != nil && err != pgx.ErrNoRows {
		logger.Warn("audit store row iteration failed", "service", service, "error", err)
		return nil
	}
	return records
}
