package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecute_UnknownAction(t *testing.T) {
	e := New()
	r := e.Execute(context.Background(), "teleport_service")
	assert.False(t, r.Success)
	assert.Contains(t, r.Output, "unknown action")
}

func TestExecute_RestartServiceRejectsUnlistedTarget(t *testing.T) {
	e := New()
	r := e.Execute(context.Background(), "restart_service: not-a-real-unit")
	assert.False(t, r.Success)
	assert.Contains(t, r.Output, "not in the restartable list")
}

func TestExecute_RestartServiceRejectsEmptyTarget(t *testing.T) {
	e := New()
	r := e.Execute(context.Background(), "restart_service")
	assert.False(t, r.Success)
}

func TestExecute_CheckDiskUsageRuns(t *testing.T) {
	e := New()
	r := e.Execute(context.Background(), "check_disk_usage")
	assert.True(t, r.Success)
}

func TestExecute_CheckMemoryRuns(t *testing.T) {
	e := New()
	r := e.Execute(context.Background(), "check_memory")
	assert.True(t, r.Success)
}

func TestSplitAction(t *testing.T) {
	cases := []struct {
		in       string
		wantKind string
		wantArg  string
	}{
		{"restart_service: caddy", "restart_service", "caddy"},
		{"restart_service caddy", "restart_service", "caddy"},
		{"check_memory", "check_memory", ""},
	}
	for _, c := range cases {
		kind, arg := splitAction(c.in)
		assert.Equal(t, c.wantKind, kind)
		assert.Equal(t, c.wantArg, arg)
	}
}
