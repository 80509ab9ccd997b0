package config

import (
	"testing"
	"time"
)

func TestLoadBeaconDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*BeaconConfig) bool
	}{
		{"default host is 0.0.0.0", func(c *BeaconConfig) bool { return c.Host == "0.0.0.0" }},
		{"default port is 8080", func(c *BeaconConfig) bool { return c.Port == 8080 }},
		{"default max auto actions per hour is 10", func(c *BeaconConfig) bool { return c.MaxAutoActionsPerHour == 10 }},
		{"default min confidence is 0.7", func(c *BeaconConfig) bool { return c.MinConfidence == 0.7 }},
		{"default scan interval is 300s", func(c *BeaconConfig) bool { return c.ScanInterval() == 300*time.Second }},
		{"default log format is json", func(c *BeaconConfig) bool { return c.LogFormat == "json" }},
		{"listen addr format", func(c *BeaconConfig) bool { return c.ListenAddr() == "0.0.0.0:8080" }},
	}

	cfg, err := LoadBeacon()
	if err != nil {
		t.Fatalf("LoadBeacon() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("unexpected value for %s", tt.name)
			}
		})
	}
}

func TestBeaconConfig_AuditDBs(t *testing.T) {
	cfg := &BeaconConfig{AuditDBsJSON: `{"caddy":"postgres://caddy-audit/db"}`}
	dbs, err := cfg.AuditDBs()
	if err != nil {
		t.Fatalf("AuditDBs() error: %v", err)
	}
	if dbs["caddy"] != "postgres://caddy-audit/db" {
		t.Errorf("got %q", dbs["caddy"])
	}
}

func TestBeaconConfig_AuditDBsEmpty(t *testing.T) {
	cfg := &BeaconConfig{}
	dbs, err := cfg.AuditDBs()
	if err != nil {
		t.Fatalf("AuditDBs() error: %v", err)
	}
	if len(dbs) != 0 {
		t.Errorf("expected empty map, got %v", dbs)
	}
}

func TestLoadGatewayDefaults(t *testing.T) {
	cfg, err := LoadGateway()
	if err != nil {
		t.Fatalf("LoadGateway() error: %v", err)
	}
	if cfg.BreakglassMaxDuration() != 30*time.Minute {
		t.Errorf("expected 30m max, got %v", cfg.BreakglassMaxDuration())
	}
	if cfg.BreakglassDefaultDuration() != 10*time.Minute {
		t.Errorf("expected 10m default, got %v", cfg.BreakglassDefaultDuration())
	}
}

func TestLoadCADefaults(t *testing.T) {
	cfg, err := LoadCA()
	if err != nil {
		t.Fatalf("LoadCA() error: %v", err)
	}
	if cfg.ValidityDiag() != 5*time.Minute {
		t.Errorf("expected 5m diag validity, got %v", cfg.ValidityDiag())
	}
	if cfg.ValidityRemediate() != 10*time.Minute {
		t.Errorf("expected 10m remediate validity, got %v", cfg.ValidityRemediate())
	}
	if cfg.ValidityBreakglass() != 30*time.Minute {
		t.Errorf("expected 30m breakglass validity, got %v", cfg.ValidityBreakglass())
	}
}
