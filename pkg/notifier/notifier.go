// Package notifier implements the Notifier contract (spec §4.9):
// notify_escalation and notify_auto_fix_failure. Failures inside
// notification must never propagate to the Analysis Engine — every method
// here logs and swallows its own errors.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wisbric/wopr/pkg/types"
)

// Notifier is the contract the Analysis Engine depends on. There is
// deliberately no notify-on-success method (spec §9 open question,
// preserved as specified).
type Notifier interface {
	NotifyEscalation(ctx context.Context, tier types.DecisionTier, service, errorSummary, proposedAction string, confidence float64, escalationID string)
	NotifyAutoFixFailure(ctx context.Context, service, action, output string)
}

// noop is used when no delivery backend is configured; every call is a
// structured log line only.
type noop struct {
	logger *slog.Logger
}

// NewNoop returns a Notifier that only logs.
func NewNoop(logger *slog.Logger) Notifier {
	return &noop{logger: logger}
}

func (n *noop) NotifyEscalation(_ context.Context, tier types.DecisionTier, service, errorSummary, proposedAction string, confidence float64, escalationID string) {
	n.logger.Info("escalation created",
		"escalation_id", escalationID,
		"tier", tier,
		"service", service,
		"proposed_action", proposedAction,
		"confidence", confidence,
		"error_summary", errorSummary,
	)
}

func (n *noop) NotifyAutoFixFailure(_ context.Context, service, action, output string) {
	n.logger.Warn("auto-fix failed",
		"service", service,
		"action", action,
		"output", output,
	)
}

// fmtEscalationText renders the human-readable line shared by delivery
// backends that post plain text (e.g. Slack).
func fmtEscalationText(tier types.DecisionTier, service, proposedAction string, confidence float64) string {
	return fmt.Sprintf("[%s] %s wants to run %q (confidence %.2f) — needs operator approval", tier, service, proposedAction, confidence)
}

func fmtAutoFixFailureText(service, action string) string {
	return fmt.Sprintf("auto-fix failed: %s on %s", action, service)
}
