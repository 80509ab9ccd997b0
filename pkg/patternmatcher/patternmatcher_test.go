package patternmatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wisbric/wopr/pkg/types"
)

func TestMatch_OOMFastPath(t *testing.T) {
	decision, ok := Match("caddy", "Out of memory: kill process 1234")
	assert.True(t, ok)
	assert.Equal(t, types.DecisionSuggest, decision.Tier)
	assert.Equal(t, "check_memory", decision.Action)
	assert.Equal(t, 0.9, decision.Confidence)
	assert.Equal(t, "caddy", decision.Service)
}

func TestMatch_CaseInsensitive(t *testing.T) {
	_, ok := Match("svc", "CONNECTION REFUSED by upstream")
	assert.True(t, ok)
}

func TestMatch_NoMatchFallsThrough(t *testing.T) {
	_, ok := Match("svc", "widget count changed from 3 to 4")
	assert.False(t, ok)
}

func TestMatch_FirstMatchWins(t *testing.T) {
	t.Run("disk vs timeout ordering", func(t *testing.T) {
		decision, ok := Match("svc", "no space left on device while writing, request timed out")
		assert.True(t, ok)
		assert.Equal(t, "disk_full", decision.ErrorPattern)
	})
}

func TestMatch_AllPatternsCompile(t *testing.T) {
	for _, e := range compiledEntries() {
		assert.NotNil(t, e.re, "pattern %q must compile", e.pattern.Name)
	}
}
