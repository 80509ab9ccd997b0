package analysisstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisbric/wopr/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	run := types.AnalysisRun{ID: uuid.New(), StartedAt: time.Now(), Status: types.RunRunning}
	require.NoError(t, s.CreateRun(run))

	completedAt := time.Now()
	run.Status = types.RunCompleted
	run.CompletedAt = &completedAt
	run.ErrorsFound = 3
	require.NoError(t, s.CompleteRun(run))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].ErrorsFound)
}

func TestEscalation_DedupFindsPending(t *testing.T) {
	s := newTestStore(t)
	esc := types.Escalation{
		ID:             uuid.New(),
		AnalysisRunID:  uuid.New(),
		CreatedAt:      time.Now(),
		Service:        "caddy",
		ProposedAction: "restart_service",
		Status:         types.EscalationPending,
	}
	require.NoError(t, s.CreateEscalation(esc))

	match, err := s.FindPendingDuplicate("caddy", "restart_service", time.Now())
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, esc.ID, match.ID)
}

func TestEscalation_DedupIgnoresOldOrResolved(t *testing.T) {
	s := newTestStore(t)
	old := types.Escalation{
		ID: uuid.New(), CreatedAt: time.Now().Add(-25 * time.Hour),
		Service: "caddy", ProposedAction: "restart_service", Status: types.EscalationPending,
	}
	resolved := types.Escalation{
		ID: uuid.New(), CreatedAt: time.Now(),
		Service: "nginx", ProposedAction: "restart_service", Status: types.EscalationApproved,
	}
	require.NoError(t, s.CreateEscalation(old))
	require.NoError(t, s.CreateEscalation(resolved))

	match, err := s.FindPendingDuplicate("caddy", "restart_service", time.Now())
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = s.FindPendingDuplicate("nginx", "restart_service", time.Now())
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestAutoActionLog_CountSince(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendAutoAction(types.AutoActionLog{
			ID: uuid.New(), ExecutedAt: now.Add(-time.Duration(i) * 10 * time.Minute), Service: "caddy", Action: "restart_service", Success: true,
		}))
	}
	// one old entry outside the hour window
	require.NoError(t, s.AppendAutoAction(types.AutoActionLog{
		ID: uuid.New(), ExecutedAt: now.Add(-2 * time.Hour), Service: "caddy", Action: "restart_service", Success: true,
	}))

	count, err := s.CountAutoActionsSince(now.Add(-1 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestListEscalations_FiltersByStatusAndCapsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateEscalation(types.Escalation{
			ID: uuid.New(), CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
			Service: "svc", ProposedAction: "restart_service", Status: types.EscalationPending,
		}))
	}
	require.NoError(t, s.CreateEscalation(types.Escalation{
		ID: uuid.New(), CreatedAt: time.Now(), Service: "svc", ProposedAction: "restart_service", Status: types.EscalationRejected,
	}))

	pending, err := s.ListEscalations(types.EscalationPending, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	for _, e := range pending {
		assert.Equal(t, types.EscalationPending, e.Status)
	}
}
