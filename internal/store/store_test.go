package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/perfstack/nmon-insight/internal/models"
)

func testAnalysis(fileID string, start time.Time, overall models.Level) models.Analysis {
	return models.Analysis{
		FileID:    fileID,
		Hostname:  "edge-01",
		StartTime: start,
		Overall:   overall,
		Checks: []models.Check{
			{Rule: "cpu_sustained_high", Level: overall, Summary: "test"},
		},
	}
}

func writeCapture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "capture.nmon")
	if err := os.WriteFile(path, []byte("AAA,hostname,edge-01\n"), 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	return path
}

func TestSaveAndLoadAnalysis(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	capturePath := writeCapture(t, dir)
	start := time.Date(2024, time.January, 1, 0, 0, 30, 0, time.UTC)

	if err := s.SaveAnalysis(testAnalysis("f1", start, models.LevelWarn), capturePath); err != nil {
		t.Fatalf("save: %v", err)
	}

	payload, err := s.LoadAnalysis("f1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if payload.FileID != "f1" || payload.Overall != models.LevelWarn {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.StartTime != start.Format(time.RFC3339) {
		t.Fatalf("unexpected start time %q", payload.StartTime)
	}
	if len(payload.Checks) != 1 || payload.Checks[0].Rule != "cpu_sustained_high" {
		t.Fatalf("unexpected checks: %+v", payload.Checks)
	}

	if _, err := os.Stat(s.UploadPath("f1")); err != nil {
		t.Fatalf("expected upload copy: %v", err)
	}
}

func TestLoadAnalysisNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := s.LoadAnalysis("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAnalysesNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	capturePath := writeCapture(t, dir)
	old := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	if err := s.SaveAnalysis(testAnalysis("old", old, models.LevelOK), capturePath); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveAnalysis(testAnalysis("recent", recent, models.LevelCrit), capturePath); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := s.ListAnalyses()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].FileID != "recent" {
		t.Fatalf("expected newest first, got %q", entries[0].FileID)
	}
}

func TestSaveAnalysisReplacesIndexEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	capturePath := writeCapture(t, dir)
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	if err := s.SaveAnalysis(testAnalysis("f1", start, models.LevelOK), capturePath); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveAnalysis(testAnalysis("f1", start, models.LevelCrit), capturePath); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := s.ListAnalyses()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected deduplicated index, got %d entries", len(entries))
	}
	if entries[0].Overall != models.LevelCrit {
		t.Fatalf("expected refreshed entry, got %s", entries[0].Overall)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	capturePath := writeCapture(t, dir)
	if err := s.SaveAnalysis(testAnalysis("f1", time.Now(), models.LevelOK), capturePath); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := s.ListAnalyses()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty store after clear, got %d entries", len(entries))
	}
	if _, err := s.LoadAnalysis("f1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected analysis removed, got %v", err)
	}
}

func TestGenerateFileID(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	id := s.GenerateFileID("host 01/night run")
	if strings.ContainsAny(id, " /") {
		t.Fatalf("expected sanitized id, got %q", id)
	}
	if !strings.HasPrefix(id, "host-01-night-run-") {
		t.Fatalf("unexpected id shape %q", id)
	}
	if s.GenerateFileID("") == "" {
		t.Fatalf("expected fallback id for empty stem")
	}
}
