// Package collector implements the Error Collector: pulling recent errors
// from the system journal and optional per-service audit stores, merged by
// service. Failures of either source are swallowed — the collector must
// never raise.
package collector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/wisbric/wopr/pkg/types"
)

const journalTimeout = 10 * time.Second

// journalRecord is the subset of `journalctl -o json` fields the collector
// cares about.
type journalRecord struct {
	Message           string `json:"MESSAGE"`
	Priority          string `json:"PRIORITY"`
	RealtimeTimestamp string `json:"__REALTIME_TIMESTAMP"`
	Unit              string `json:"UNIT"`
	SystemdUnit       string `json:"_SYSTEMD_UNIT"`
	ContainerName     string `json:"CONTAINER_NAME"`
	SyslogIdentifier  string `json:"SYSLOG_IDENTIFIER"`
}

// journalctlPriorityErr is the numeric syslog priority threshold for
// "severity >= error" (err=3, crit=2, alert=1, emerg=0).
const journalctlPriorityErr = "3"

// CollectJournal queries the system journal for entries at severity >=
// error within the last window, as a flat slice with each record's service
// set; Collector.Collect does the grouping by service. Any failure (missing
// journalctl, non-zero exit, malformed output) is swallowed and yields an
// empty slice.
func CollectJournal(ctx context.Context, window time.Duration) []types.ErrorRecord {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	since := time.Now().Add(-window).Format("2006-01-02 15:04:05")
	cmd := exec.CommandContext(ctx, "journalctl",
		"-o", "json",
		"-p", journalctlPriorityErr,
		"--since", since,
		"--no-pager",
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil
	}

	var records []types.ErrorRecord
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, types.ErrorRecord{
			Source:    types.SourceJournal,
			Service:   serviceIdentity(rec),
			Severity:  types.SeverityError,
			Timestamp: parseRealtime(rec.RealtimeTimestamp),
			Message:   rec.Message,
		})
	}
	return records
}

// serviceIdentity derives the owning service name in priority order: UNIT,
// _SYSTEMD_UNIT, CONTAINER_NAME, SYSLOG_IDENTIFIER, otherwise "unknown". A
// trailing ".service" suffix is stripped if present.
func serviceIdentity(rec journalRecord) string {
	for _, candidate := range []string{rec.Unit, rec.SystemdUnit, rec.ContainerName, rec.SyslogIdentifier} {
		if candidate == "" {
			continue
		}
		return strings.TrimSuffix(candidate, ".service")
	}
	return "unknown"
}

// parseRealtime converts journalctl's microsecond-since-epoch timestamp
// string into a time.Time, falling back to now on any parse failure.
func parseRealtime(raw string) time.Time {
	usec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMicro(usec)
}
