package models

import (
	"math"
	"testing"
	"time"
)

func TestSeriesToPayloadDownsamples(t *testing.T) {
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	s := &Series{Name: "cpu_busy_pct"}
	for i := 0; i < 100; i++ {
		s.Timestamps = append(s.Timestamps, base.Add(time.Duration(i)*time.Minute))
		s.Values = append(s.Values, float64(i))
	}

	payload := s.ToPayload(10)
	if len(payload.Values) > 10 {
		t.Fatalf("expected at most 10 points, got %d", len(payload.Values))
	}
	if payload.Values[0] != 0 {
		t.Fatalf("expected first sample kept, got %f", payload.Values[0])
	}
	if len(payload.Timestamps) != len(payload.Values) {
		t.Fatalf("timestamps and values diverge: %d vs %d", len(payload.Timestamps), len(payload.Values))
	}

	full := s.ToPayload(0)
	if len(full.Values) != 100 {
		t.Fatalf("expected uncapped payload, got %d points", len(full.Values))
	}
}

func TestSeriesToPayloadDropsNaN(t *testing.T) {
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	s := &Series{
		Name:       "mem_used_kb",
		Timestamps: []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)},
		Values:     []float64{100, math.NaN(), 300},
	}
	payload := s.ToPayload(0)
	if len(payload.Values) != 2 {
		t.Fatalf("expected NaN sample dropped, got %v", payload.Values)
	}
	if payload.Values[1] != 300 {
		t.Fatalf("expected 300 after the gap, got %f", payload.Values[1])
	}
}

func TestAnalysisToPayload(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 30, 0, time.UTC)
	analysis := Analysis{
		FileID:    "f1",
		Hostname:  "edge-01",
		StartTime: start,
		Overall:   LevelWarn,
		Checks: []Check{
			{
				Rule:     "cpu_sustained_high",
				Level:    LevelWarn,
				Summary:  "sustained",
				Evidence: &Evidence{WindowStart: start, WindowEnd: start.Add(5 * time.Minute)},
				Metrics:  map[string]float64{"peak": 80},
			},
		},
	}

	payload := analysis.ToPayload()
	if payload.StartTime != "2024-01-01T00:00:30Z" {
		t.Fatalf("unexpected start time %q", payload.StartTime)
	}
	if len(payload.Checks) != 1 {
		t.Fatalf("expected 1 check, got %d", len(payload.Checks))
	}
	check := payload.Checks[0]
	if check.WindowStart == "" || check.WindowEnd == "" {
		t.Fatalf("expected evidence window serialized, got %+v", check)
	}
	if check.Metrics["peak"] != 80 {
		t.Fatalf("unexpected metrics %v", check.Metrics)
	}
}

func TestMaxLevel(t *testing.T) {
	if MaxLevel(LevelOK, LevelCrit) != LevelCrit {
		t.Fatalf("expected CRIT to dominate")
	}
	if MaxLevel(LevelWarn, LevelOK) != LevelWarn {
		t.Fatalf("expected WARN to dominate OK")
	}
	if LevelCrit.Rank() <= LevelWarn.Rank() || LevelWarn.Rank() <= LevelOK.Rank() {
		t.Fatalf("severity order broken")
	}
}
