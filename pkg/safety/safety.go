// Package safety implements the Safety Validator: the single component
// that may downgrade a Decision's tier. It can never upgrade one.
package safety

import (
	"fmt"
	"strings"

	"github.com/wisbric/wopr/pkg/types"
)

// Blocklist is the command blocklist from spec §6.6: substring match,
// case-insensitive, against the proposed action.
var Blocklist = []string{
	"rm -rf",
	"dd if=",
	"mkfs",
	"chmod 777",
	"DROP TABLE",
	"TRUNCATE",
	"DELETE FROM",
	"> /dev/sd",
	"wget -O -",
	"curl | bash",
	"curl | sh",
	"eval(",
	"exec(",
}

// Allowlist is the Tier-1 action allowlist from spec §6.7.
var Allowlist = []string{
	"restart_service",
	"restart_container",
	"pull_container_image",
	"reload_caddy",
	"clear_tmp",
	"rotate_logs",
	"check_disk_usage",
	"check_memory",
	"dns_flush",
}

// DefaultMinConfidence is the confidence floor used when no MIN_CONFIDENCE
// override is configured.
const DefaultMinConfidence = 0.7

// Validator enforces the blocklist, allowlist, and confidence-floor rules
// in order. It is the single enforcement point; every other component
// trusts its output.
type Validator struct {
	MinConfidence float64
}

// New builds a Validator with the given confidence floor. A non-positive
// floor falls back to DefaultMinConfidence.
func New(minConfidence float64) *Validator {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Validator{MinConfidence: minConfidence}
}

// actionKind returns the first whitespace/":"-separated token of action,
// which is what the allowlist check compares against (a restart_service
// decision may carry "restart_service: caddy" as its action string).
func actionKind(action string) string {
	action = strings.TrimSpace(action)
	if idx := strings.IndexAny(action, " :"); idx >= 0 {
		return action[:idx]
	}
	return action
}

func containsBlocked(action string) (string, bool) {
	lower := strings.ToLower(action)
	for _, b := range Blocklist {
		if strings.Contains(lower, strings.ToLower(b)) {
			return b, true
		}
	}
	return "", false
}

func isAllowed(kind string) bool {
	for _, a := range Allowlist {
		if a == kind {
			return true
		}
	}
	return false
}

// Validate applies the three safety rules in order and returns the
// resulting (possibly downgraded) decision. It never mutates its argument
// in place; it returns a new value.
func (v *Validator) Validate(d types.Decision) types.Decision {
	// Rule 1: blocklist override.
	if blocked, hit := containsBlocked(d.Action); hit {
		d.Tier = types.DecisionEscalate
		d.Confidence = 0
		d.Reasoning = fmt.Sprintf("BLOCKED: action matched blocklist entry %q", blocked)
		return d
	}

	// Rule 2: allowlist gate.
	if d.Tier == types.DecisionAuto && !isAllowed(actionKind(d.Action)) {
		d.Tier = types.DecisionSuggest
		d.Reasoning = d.Reasoning + "; downgraded: action not in Tier-1 allowlist"
		return d
	}

	// Rule 3: confidence floor.
	if d.Tier == types.DecisionAuto && d.Confidence < v.MinConfidence {
		d.Tier = types.DecisionSuggest
		d.Reasoning = fmt.Sprintf("%s; downgraded: confidence %.2f below floor %.2f", d.Reasoning, d.Confidence, v.MinConfidence)
		return d
	}

	return d
}
