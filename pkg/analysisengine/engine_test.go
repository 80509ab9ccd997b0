package analysisengine

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisbric/wopr/pkg/analysisstore"
	"github.com/wisbric/wopr/pkg/collector"
	"github.com/wisbric/wopr/pkg/executor"
	"github.com/wisbric/wopr/pkg/notifier"
	"github.com/wisbric/wopr/pkg/safety"
	"github.com/wisbric/wopr/pkg/types"
)

func newTestEngine(t *testing.T) (*Engine, *analysisstore.Store) {
	t.Helper()
	store, err := analysisstore.Open(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	e := New(store, collector.New(nil, logger), nil, safety.New(0.7), executor.New(), notifier.NewNoop(logger), logger, Config{
		MaxAutoActionsPerHour: 10,
		ScanInterval:          time.Hour,
	})
	return e, store
}

func TestStartStop_Idempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.Start(ctx)
	e.Start(ctx)
	assert.True(t, e.IsRunning())

	e.Stop()
	assert.False(t, e.IsRunning())
	e.Stop() // idempotent
}

func TestRunCycle_RateLimitDowngradesToSuggestAndEscalates(t *testing.T) {
	e, store := newTestEngine(t)
	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, store.AppendAutoAction(types.AutoActionLog{
			ID: uuid.New(), ExecutedAt: now.Add(-time.Duration(i) * time.Minute), Service: "caddy", Action: "restart_service", Success: true,
		}))
	}

	run := types.AnalysisRun{ID: uuid.New()}
	decision := types.Decision{Tier: types.DecisionAuto, Action: "restart_service", Confidence: 0.9, Service: "caddy"}
	e.act(context.Background(), &run, decision)

	assert.Equal(t, 1, run.Escalated)
	assert.Equal(t, 0, run.AutoFixed)

	countAfter, err := store.CountAutoActionsSince(now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 10, countAfter, "auto_actions_log must be unchanged")
}

func TestEscalate_DedupSkipsSecondCreation(t *testing.T) {
	e, store := newTestEngine(t)
	run := types.AnalysisRun{ID: uuid.New()}
	decision := types.Decision{Tier: types.DecisionEscalate, Action: "investigate", Confidence: 0.5, Service: "caddy", Reasoning: "auth failure"}

	e.escalate(context.Background(), &run, decision)
	assert.Equal(t, 1, run.Escalated)

	run2 := types.AnalysisRun{ID: uuid.New()}
	e.escalate(context.Background(), &run2, decision)
	assert.Equal(t, 0, run2.Escalated, "second escalation must collapse into the first")

	all, err := store.ListEscalations(types.EscalationPending, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRunCycle_CompletesWithNoErrors(t *testing.T) {
	e, store := newTestEngine(t)
	run, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunCompleted, runs[0].Status)
}
