package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wisbric/wopr/pkg/types"
)

func newServer(t *testing.T, status int, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status >= 200 && status < 300 {
			_ = json.NewEncoder(w).Encode(map[string]string{"response": response})
		}
	}))
}

func TestClassify_BlocklistedActionPassesThrough(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"tier":"tier1_auto","action":"rm -rf /var/log","confidence":0.95,"reasoning":"cleanup","service":"caddy","error_pattern":"disk"}`)
	defer srv.Close()

	c := New(srv.URL, "llama3")
	d, ok := c.Classify(context.Background(), "caddy", "disk errors")
	require.True(t, ok)
	assert.Equal(t, types.DecisionAuto, d.Tier)
	assert.Equal(t, "rm -rf /var/log", d.Action)
	assert.Equal(t, 0.95, d.Confidence)
}

func TestClassify_MalformedJSONYieldsNoDecision(t *testing.T) {
	srv := newServer(t, http.StatusOK, `not json at all`)
	defer srv.Close()

	c := New(srv.URL, "llama3")
	_, ok := c.Classify(context.Background(), "caddy", "errors")
	assert.False(t, ok)
}

func TestClassify_NonSuccessStatusYieldsNoDecision(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, "")
	defer srv.Close()

	c := New(srv.URL, "llama3")
	_, ok := c.Classify(context.Background(), "caddy", "errors")
	assert.False(t, ok)
}

func TestClassify_MissingFieldsGetDefaults(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`)
	defer srv.Close()

	c := New(srv.URL, "llama3")
	d, ok := c.Classify(context.Background(), "caddy", "errors")
	require.True(t, ok)
	assert.Equal(t, types.DecisionEscalate, d.Tier)
	assert.Equal(t, "investigate", d.Action)
	assert.Equal(t, 0.5, d.Confidence)
}

func TestClassify_ConfidenceClamped(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"confidence": 5}`)
	defer srv.Close()

	c := New(srv.URL, "llama3")
	d, ok := c.Classify(context.Background(), "caddy", "errors")
	require.True(t, ok)
	assert.Equal(t, 1.0, d.Confidence)
}
