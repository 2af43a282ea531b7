package rules

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/perfstack/nmon-insight/internal/models"
	"github.com/perfstack/nmon-insight/internal/series"
)

func TestEngineRuleOrder(t *testing.T) {
	engine := NewEngine(nil)
	want := []string{"cpu_sustained_high", "memory_leak", "excessive_emmc_writes", "excessive_network_usage"}
	got := engine.Rules()
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected rule %q at position %d, got %q", want[i], i, got[i])
		}
	}
}

func TestEngineAnalyzeOverall(t *testing.T) {
	engine := NewEngine(nil)
	th := testThresholds(t)

	cpu := minuteSeries(series.CPUBusySeries, 95, 95, 95, 95, 95, 95)
	net := minuteSeries(series.NetTotalSeries, 30000, 30000, 30000, 30000, 30000, 30000)
	capture := &models.Capture{
		FileID:    "f1",
		Hostname:  "edge-01",
		StartTime: cpu.Timestamps[0],
		Series: map[string]*models.Series{
			cpu.Name: cpu,
			net.Name: net,
		},
	}

	analysis := engine.Analyze(capture, th)
	if analysis.Overall != models.LevelCrit {
		t.Fatalf("expected overall CRIT, got %s", analysis.Overall)
	}
	if len(analysis.Checks) != 2 {
		t.Fatalf("expected 2 fired checks, got %d", len(analysis.Checks))
	}
	// Checks appear in registration order regardless of severity.
	if analysis.Checks[0].Rule != "cpu_sustained_high" || analysis.Checks[1].Rule != "excessive_network_usage" {
		t.Fatalf("unexpected check order: %s, %s", analysis.Checks[0].Rule, analysis.Checks[1].Rule)
	}
}

func TestEngineAnalyzeQuietCapture(t *testing.T) {
	engine := NewEngine(nil)
	th := testThresholds(t)

	cpu := minuteSeries(series.CPUBusySeries, 10, 12, 9, 11, 10, 12)
	capture := &models.Capture{
		FileID:    "f1",
		StartTime: cpu.Timestamps[0],
		Series:    map[string]*models.Series{cpu.Name: cpu},
	}

	analysis := engine.Analyze(capture, th)
	if analysis.Overall != models.LevelOK {
		t.Fatalf("expected OK, got %s", analysis.Overall)
	}
	if len(analysis.Checks) != 0 {
		t.Fatalf("expected no checks, got %d", len(analysis.Checks))
	}
}

func TestEngineAnalyzeDeterministic(t *testing.T) {
	engine := NewEngine(nil)
	th := testThresholds(t)

	capture := &models.Capture{
		FileID: "f1",
		Series: map[string]*models.Series{
			series.DiskWritePrefix + "mmcblk0": minuteSeries(series.DiskWritePrefix+"mmcblk0", 4000, 4000, 4000, 4000, 4000, 4000),
			series.DiskWritePrefix + "mmcblk1": minuteSeries(series.DiskWritePrefix+"mmcblk1", 4000, 4000, 4000, 4000, 4000, 4000),
		},
	}

	first, err := json.Marshal(engine.Analyze(capture, th).ToPayload())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := json.Marshal(engine.Analyze(capture, th).ToPayload())
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, next) {
			t.Fatalf("analysis not deterministic:\n%s\n%s", first, next)
		}
	}
}
