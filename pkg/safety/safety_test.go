package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wisbric/wopr/pkg/types"
)

func TestValidate_BlocklistOverride(t *testing.T) {
	v := New(0.7)
	d := v.Validate(types.Decision{
		Tier:       types.DecisionAuto,
		Action:     "rm -rf /var/log",
		Confidence: 0.95,
		Service:    "caddy",
	})
	assert.Equal(t, types.DecisionEscalate, d.Tier)
	assert.Equal(t, 0.0, d.Confidence)
	assert.True(t, strings.Contains(d.Reasoning, "BLOCKED"))
}

func TestValidate_AllowlistDowngrade(t *testing.T) {
	v := New(0.7)
	d := v.Validate(types.Decision{
		Tier:       types.DecisionAuto,
		Action:     "format_disk",
		Confidence: 0.95,
	})
	assert.Equal(t, types.DecisionSuggest, d.Tier)
}

func TestValidate_ConfidenceFloorDowngrade(t *testing.T) {
	v := New(0.7)
	d := v.Validate(types.Decision{
		Tier:       types.DecisionAuto,
		Action:     "restart_service",
		Confidence: 0.5,
	})
	assert.Equal(t, types.DecisionSuggest, d.Tier)
}

func TestValidate_NeverUpgrades(t *testing.T) {
	v := New(0.7)
	d := v.Validate(types.Decision{
		Tier:       types.DecisionSuggest,
		Action:     "restart_service",
		Confidence: 0.99,
	})
	assert.Equal(t, types.DecisionSuggest, d.Tier)
}

func TestValidate_PassesAutoThrough(t *testing.T) {
	v := New(0.7)
	d := v.Validate(types.Decision{
		Tier:       types.DecisionAuto,
		Action:     "restart_service",
		Confidence: 0.9,
	})
	assert.Equal(t, types.DecisionAuto, d.Tier)
}

func TestValidate_ActionWithArgumentToken(t *testing.T) {
	v := New(0.7)
	d := v.Validate(types.Decision{
		Tier:       types.DecisionAuto,
		Action:     "restart_service: caddy",
		Confidence: 0.9,
	})
	assert.Equal(t, types.DecisionAuto, d.Tier)
}

func TestValidate_BlocklistCaseInsensitive(t *testing.T) {
	v := New(0.7)
	d := v.Validate(types.Decision{
		Tier:       types.DecisionAuto,
		Action:     "DROP table users",
		Confidence: 0.9,
	})
	assert.Equal(t, types.DecisionEscalate, d.Tier)
}
