package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("expected default address :8080, got %q", cfg.Server.Address)
	}
	if cfg.Thresholds.CPU.BusyPctWarn != 75 || cfg.Thresholds.CPU.BusyPctCrit != 90 {
		t.Fatalf("unexpected default cpu thresholds: %+v", cfg.Thresholds.CPU)
	}
	if cfg.Thresholds.Memory.Series != "mem_active_kb" {
		t.Fatalf("unexpected default memory series %q", cfg.Thresholds.Memory.Series)
	}
	if cfg.Cache.SeriesTTL != 5*time.Minute {
		t.Fatalf("unexpected default series TTL %v", cfg.Cache.SeriesTTL)
	}
	if cfg.Thresholds.DeviceRe() == nil || !cfg.Thresholds.DeviceRe().MatchString("mmcblk0") {
		t.Fatalf("expected compiled device matcher accepting mmcblk0")
	}
	if cfg.Thresholds.IfaceRe().MatchString("lo") {
		t.Fatalf("expected loopback excluded by default iface matcher")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  address: ":9090"
thresholds:
  cpu:
    busyPctWarn: 60
    busyPctCrit: 85
    sustainedMinutes: 3
aliases:
  mmcblk0: "internal eMMC"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.Server.Address)
	}
	if cfg.Thresholds.CPU.BusyPctWarn != 60 || cfg.Thresholds.CPU.SustainedMinutes != 3 {
		t.Fatalf("unexpected cpu thresholds: %+v", cfg.Thresholds.CPU)
	}
	// Unset sections keep their defaults.
	if cfg.Thresholds.EMMC.KbpsCrit != 20000 {
		t.Fatalf("expected default emmc crit, got %f", cfg.Thresholds.EMMC.KbpsCrit)
	}
	if cfg.Aliases["mmcblk0"] != "internal eMMC" {
		t.Fatalf("unexpected aliases: %v", cfg.Aliases)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NMON_INSIGHT_SERVER_ADDRESS", ":7070")
	t.Setenv("NMON_INSIGHT_LOG_FORMAT", "json")
	t.Setenv("NMON_INSIGHT_INGEST_DIR", "/tmp/spool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("expected env override :7070, got %q", cfg.Server.Address)
	}
	if !cfg.Logging.JSON {
		t.Fatalf("expected JSON logging enabled")
	}
	if !cfg.Ingest.Enabled || cfg.Ingest.Dir != "/tmp/spool" {
		t.Fatalf("expected ingest enabled via env, got %+v", cfg.Ingest)
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.CPU.BusyPctCrit = 50 // below warn
	err := th.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "busyPctCrit") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadRegex(t *testing.T) {
	th := DefaultThresholds()
	th.EMMC.DeviceRegex = "("
	if err := th.Validate(); err == nil {
		t.Fatalf("expected regex compile error")
	}
}

func TestValidateRejectsBadR2(t *testing.T) {
	th := DefaultThresholds()
	th.Memory.R2Min = 1.5
	if err := th.Validate(); err == nil {
		t.Fatalf("expected r2Min range error")
	}
	th = DefaultThresholds()
	th.Memory.MinSamples = 1
	if err := th.Validate(); err == nil {
		t.Fatalf("expected minSamples error")
	}
}
