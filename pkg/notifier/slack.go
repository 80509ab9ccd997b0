package notifier

import (
	"context"
	"log/slog"

	goslack "github.com/slack-go/slack"
	"github.com/wisbric/wopr/pkg/types"
)

// SlackNotifier delivers escalation and auto-fix-failure notifications to
// a single Slack channel. Grounded on the teacher's Slack integration
// (same client library), trimmed to the two outbound calls this contract
// needs — no inbound interaction handling (modals, DMs, ephemeral replies)
// survives here, since nothing in this spec consumes Slack events.
type SlackNotifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlack builds a SlackNotifier. If botToken is empty the notifier is a
// no-op that only logs — matching the teacher's IsEnabled() pattern.
func NewSlack(botToken, channel string, logger *slog.Logger) *SlackNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackNotifier{client: client, channel: channel, logger: logger}
}

func (n *SlackNotifier) enabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyEscalation posts a message describing a newly created escalation.
// Any Slack API failure is logged and dropped, never returned.
func (n *SlackNotifier) NotifyEscalation(ctx context.Context, tier types.DecisionTier, service, errorSummary, proposedAction string, confidence float64, escalationID string) {
	if !n.enabled() {
		n.logger.Debug("slack notifier disabled, skipping escalation post", "escalation_id", escalationID)
		return
	}
	text := fmtEscalationText(tier, service, proposedAction, confidence)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("posting escalation to slack failed", "escalation_id", escalationID, "error", err)
		return
	}
	n.logger.Info("posted escalation to slack", "escalation_id", escalationID, "service", service)
}

// NotifyAutoFixFailure posts a message describing a failed Tier-1 action.
func (n *SlackNotifier) NotifyAutoFixFailure(ctx context.Context, service, action, output string) {
	if !n.enabled() {
		n.logger.Debug("slack notifier disabled, skipping auto-fix-failure post", "service", service, "action", action)
		return
	}
	text := fmtAutoFixFailureText(service, action)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("posting auto-fix-failure to slack failed", "service", service, "action", action, "error", err)
		return
	}
	n.logger.Info("posted auto-fix-failure to slack", "service", service, "action", action, "output", output)
}
