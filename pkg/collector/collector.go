package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/wisbric/wopr/pkg/types"
)

// DefaultWindow is the rolling collection window used when the scheduler
// invokes a cycle (spec §4.2 default: 5 minutes).
const DefaultWindow = 5 * time.Minute

// Collector merges journal and audit-store errors into per-service groups.
type Collector struct {
	AuditDBs map[string]string
	Logger   *slog.Logger
}

// New builds a Collector. auditDBs maps service name to audit-store DSN,
// built from the AUDIT_DBS configuration value.
func New(auditDBs map[string]string, logger *slog.Logger) *Collector {
	return &Collector{AuditDBs: auditDBs, Logger: logger}
}

// Collect pulls from both sources over window and groups the result by
// service name.
func (c *Collector) Collect(ctx context.Context, window time.Duration) map[string][]types.ErrorRecord {
	var all []types.ErrorRecord
	all = append(all, CollectJournal(ctx, window)...)
	all = append(all, CollectAuditStores(ctx, c.AuditDBs, window, c.Logger)...)

	grouped := make(map[string][]types.ErrorRecord)
	for _, rec := range all {
		grouped[rec.Service] = append(grouped[rec.Service], rec)
	}
	return grouped
}
