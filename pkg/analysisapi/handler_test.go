package analysisapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisbric/wopr/internal/telemetry"
	"github.com/wisbric/wopr/pkg/analysisengine"
	"github.com/wisbric/wopr/pkg/analysisstore"
	"github.com/wisbric/wopr/pkg/collector"
	"github.com/wisbric/wopr/pkg/executor"
	"github.com/wisbric/wopr/pkg/llm"
	"github.com/wisbric/wopr/pkg/notifier"
	"github.com/wisbric/wopr/pkg/safety"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := analysisstore.Open(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := telemetry.NewLogger("text", "error")
	engine := analysisengine.New(
		store,
		collector.New(nil, logger),
		llm.New("http://localhost:0", "test-model"),
		safety.New(0.7),
		executor.New(),
		notifier.NewNoop(logger),
		logger,
		analysisengine.Config{MaxAutoActionsPerHour: 10},
	)
	return NewHandler(engine, store, llm.New("http://localhost:0", "test-model"), executor.New(), 10, logger)
}

func TestHandleStatus_EmptyStoreReportsZeroes(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"remaining_hour_budget":10`)
}

func TestHandleListEscalations_EmptyStoreReturnsEmptyArray(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/escalations?status=pending", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandleApprove_UnknownIDReturns404(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/escalations/"+"00000000-0000-0000-0000-000000000000"+"/approve", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleApprove_InvalidIDReturns400(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/escalations/not-a-uuid/approve", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnalyzeNow_RunsCycleSynchronously(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/analyze-now", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestHandleHistory_DefaultsToEmptyPage(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"has_more":false}`, rec.Body.String())
}

func TestHandleHistory_InvalidCursorReturns400(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/history?after=not-a-cursor", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
