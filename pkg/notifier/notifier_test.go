package notifier

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wisbric/wopr/pkg/types"
)

func TestNoop_NotifyEscalationLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := NewNoop(logger)

	n.NotifyEscalation(context.Background(), types.DecisionEscalate, "caddy", "disk full", "restart_service", 0.9, "esc-1")
	assert.Contains(t, buf.String(), "escalation created")
	assert.Contains(t, buf.String(), "caddy")
}

func TestNoop_NotifyAutoFixFailureLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := NewNoop(logger)

	n.NotifyAutoFixFailure(context.Background(), "caddy", "restart_service", "exit status 1")
	assert.Contains(t, buf.String(), "auto-fix failed")
}

func TestSlackNotifier_DisabledDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := NewSlack("", "", logger)

	assert.NotPanics(t, func() {
		n.NotifyEscalation(context.Background(), types.DecisionEscalate, "caddy", "disk full", "restart_service", 0.9, "esc-1")
		n.NotifyAutoFixFailure(context.Background(), "caddy", "restart_service", "output")
	})
}
