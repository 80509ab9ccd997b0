// Package gateway wires the central support gateway's tier-gated HTTP
// surface (spec §4.8): diagnostics, remediation, breakglass, and
// escalation aggregation across the fleet.
package gateway

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wisbric/wopr/pkg/types"
)

// substitutionPattern matches the sanitized alphabet a template
// substitution value is restricted to (spec §4.8/§7).
var substitutionPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// RemediationAction is one pre-approved entry in the remediation catalogue.
// CommandTemplate is a fixed argv, never a shell string: each element may
// contain at most one {key}-style placeholder.
type RemediationAction struct {
	ID              string
	Description     string
	CommandTemplate []string
	RequiredTier    types.Tier
	Keys            []string
}

// Catalogue is the fixed, in-memory list of remediation actions the
// gateway may execute on a beacon.
var Catalogue = []RemediationAction{
	{
		ID:              "restart_service",
		Description:     "Restart a systemd-managed service.",
		CommandTemplate: []string{"systemctl", "restart", "{service}"},
		RequiredTier:    types.TierRemediate,
		Keys:            []string{"service"},
	},
	{
		ID:              "restart_container",
		Description:     "Restart a Docker container.",
		CommandTemplate: []string{"docker", "restart", "{container}"},
		RequiredTier:    types.TierRemediate,
		Keys:            []string{"container"},
	},
	{
		ID:              "pull_container_image",
		Description:     "Pull the latest image for a Docker container.",
		CommandTemplate: []string{"docker", "pull", "{image}"},
		RequiredTier:    types.TierRemediate,
		Keys:            []string{"image"},
	},
	{
		ID:              "reload_caddy",
		Description:     "Reload the Caddy web server's configuration.",
		CommandTemplate: []string{"systemctl", "reload", "caddy"},
		RequiredTier:    types.TierRemediate,
	},
	{
		ID:              "clear_tmp",
		Description:     "Remove files older than one day from /tmp.",
		CommandTemplate: []string{"find", "/tmp", "-mtime", "+1", "-delete"},
		RequiredTier:    types.TierRemediate,
	},
	{
		ID:              "rotate_logs",
		Description:     "Force an immediate logrotate run.",
		CommandTemplate: []string{"logrotate", "-f", "/etc/logrotate.conf"},
		RequiredTier:    types.TierRemediate,
	},
	{
		ID:              "check_disk_usage",
		Description:     "Report disk usage.",
		CommandTemplate: []string{"df", "-h"},
		RequiredTier:    types.TierDiag,
	},
	{
		ID:              "check_memory",
		Description:     "Report memory usage.",
		CommandTemplate: []string{"free", "-h"},
		RequiredTier:    types.TierDiag,
	},
	{
		ID:              "dns_flush",
		Description:     "Flush the system resolver cache.",
		CommandTemplate: []string{"resolvectl", "flush-caches"},
		RequiredTier:    types.TierRemediate,
	},
}

// ByID looks up a catalogue entry by id.
func ByID(id string) (RemediationAction, bool) {
	for _, a := range Catalogue {
		if a.ID == id {
			return a, true
		}
	}
	return RemediationAction{}, false
}

// Render substitutes {key}-style placeholders in the command template with
// sanitized values, returning the resulting fixed argv. Every substitution
// value must match substitutionPattern; a template key with no supplied
// value, or a value outside the sanitized alphabet, is an error. This
// never builds a shell string — the result is passed directly as argv.
func (a RemediationAction) Render(values map[string]string) ([]string, error) {
	argv := make([]string, len(a.CommandTemplate))
	for i, token := range a.CommandTemplate {
		rendered, err := renderToken(token, values)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.ID, err)
		}
		argv[i] = rendered
	}
	return argv, nil
}

func renderToken(token string, values map[string]string) (string, error) {
	if !strings.HasPrefix(token, "{") || !strings.HasSuffix(token, "}") {
		return token, nil
	}
	key := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
	value, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing value for substitution key %q", key)
	}
	if !substitutionPattern.MatchString(value) {
		return "", fmt.Errorf("value for %q contains disallowed characters", key)
	}
	return value, nil
}
