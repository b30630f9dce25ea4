package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Engine.SlotMillis != 400 {
		t.Errorf("default slot_millis = %d, want 400", cfg.Engine.SlotMillis)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default log format = %s", cfg.Logging.Format)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
engine:
  max_per_market_exposure: 25.5
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.MaxPerMarketExposure != 25.5 {
		t.Errorf("max_per_market_exposure = %f", cfg.Engine.MaxPerMarketExposure)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Engine.SlotMillis != 400 {
		t.Errorf("slot_millis = %d, want default 400", cfg.Engine.SlotMillis)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PERP_SERVER_PORT", "7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("port = %d, want env override 7000", cfg.Server.Port)
	}
}
