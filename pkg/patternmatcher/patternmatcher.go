// Package patternmatcher implements the fixed, ordered regex taxonomy that
// lets obvious failures (OOM, disk-full, connection-refused, process
// killed, auth failure, cert errors, timeouts) bypass model inference
// entirely with high confidence.
package patternmatcher

import (
	"regexp"
	"sync"

	"github.com/wisbric/wopr/pkg/types"
)

// entry is a compiled KnownPattern: the regex is compiled once, on the
// first Match call, never per-match.
type entry struct {
	pattern types.KnownPattern
	re      *regexp.Regexp
}

// taxonomy is the process-wide, ordered list of known failure patterns.
// First match wins. Matching is case-insensitive.
var taxonomy = []types.KnownPattern{
	{
		Name:       "oom_kill",
		Regex:      `out of memory|oom.?kill|killed process \d+`,
		Tier:       types.DecisionSuggest,
		Action:     "check_memory",
		Confidence: 0.9,
		Reasoning:  "matched out-of-memory pattern",
	},
	{
		Name:       "disk_full",
		Regex:      `no space left on device|disk full|enospc`,
		Tier:       types.DecisionSuggest,
		Action:     "check_disk_usage",
		Confidence: 0.9,
		Reasoning:  "matched disk-full pattern",
	},
	{
		Name:       "connection_refused",
		Regex:      `connection refused|econnrefused`,
		Tier:       types.DecisionAuto,
		Action:     "restart_service",
		Confidence: 0.8,
		Reasoning:  "matched connection-refused pattern",
	},
	{
		Name:       "process_killed",
		Regex:      `segfault|segmentation fault|process (exited|terminated) with signal`,
		Tier:       types.DecisionAuto,
		Action:     "restart_service",
		Confidence: 0.85,
		Reasoning:  "matched process-crash pattern",
	},
	{
		Name:       "auth_failure",
		Regex:      `authentication failed|permission denied|invalid credentials|unauthorized`,
		Tier:       types.DecisionEscalate,
		Action:     "investigate",
		Confidence: 0.6,
		Reasoning:  "matched authentication-failure pattern",
	},
	{
		Name:       "cert_error",
		Regex:      `certificate (has expired|is invalid|verify failed)|x509:`,
		Tier:       types.DecisionEscalate,
		Action:     "investigate",
		Confidence: 0.6,
		Reasoning:  "matched certificate-error pattern",
	},
	{
		Name:       "timeout",
		Regex:      `timed out|timeout exceeded|deadline exceeded|context deadline exceeded`,
		Tier:       types.DecisionSuggest,
		Action:     "restart_service",
		Confidence: 0.7,
		Reasoning:  "matched timeout pattern",
	},
}

var (
	compileOnce sync.Once
	compiled    []entry
)

func compiledEntries() []entry {
	compileOnce.Do(func() {
		compiled = make([]entry, 0, len(taxonomy))
		for _, p := range taxonomy {
			compiled = append(compiled, entry{
				pattern: p,
				re:      regexp.MustCompile(`(?i)` + p.Regex),
			})
		}
	})
	return compiled
}

// Match scans text against the ordered taxonomy and returns the first
// matching pattern's decision. The bool is false if nothing matched; the
// caller falls through to model inference in that case.
func Match(service, text string) (types.Decision, bool) {
	for _, e := range compiledEntries() {
		if e.re.MatchString(text) {
			return types.Decision{
				Tier:         e.pattern.Tier,
				Action:       e.pattern.Action,
				Confidence:   e.pattern.Confidence,
				Reasoning:    e.pattern.Reasoning,
				Service:      service,
				ErrorPattern: e.pattern.Name,
			}, true
		}
	}
	return types.Decision{}, false
}
