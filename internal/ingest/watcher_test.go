package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/perfstack/nmon-insight/internal/config"
	"github.com/perfstack/nmon-insight/internal/services"
	"github.com/perfstack/nmon-insight/internal/store"
)

func hotCapture() string {
	var b strings.Builder
	b.WriteString("AAA,hostname,edge-01\n")
	b.WriteString("CPU_ALL,CPU Total,User%,Sys%,Idle%\n")
	for i := 0; i < 7; i++ {
		b.WriteString(fmt.Sprintf("ZZZZ,T%04d,00:%02d:00,01-JAN-2024\n", i+1, i))
		b.WriteString(fmt.Sprintf("CPU_ALL,T%04d,90.0,5.0,5.0\n", i+1))
	}
	return b.String()
}

func testWatcher(t *testing.T, spoolDir string) (*Watcher, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	th := config.DefaultThresholds()
	if err := th.Validate(); err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	analyzer := services.NewAnalyzer(nil, nil, &th, nil, st)
	return NewWatcher(nil, analyzer, spoolDir), st
}

func TestIsCapture(t *testing.T) {
	if !isCapture("/spool/edge-01.NMON") {
		t.Fatalf("expected .NMON accepted case-insensitively")
	}
	if isCapture("/spool/notes.txt") {
		t.Fatalf("expected non-capture extension rejected")
	}
}

func TestProcessAnalyzesAndRemoves(t *testing.T) {
	spool := t.TempDir()
	w, st := testWatcher(t, spool)

	path := filepath.Join(spool, "edge-01.nmon")
	if err := os.WriteFile(path, []byte(hotCapture()), 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}

	w.process(context.Background(), path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected processed capture removed, got %v", err)
	}
	entries, err := st.ListAnalyses()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Hostname != "edge-01" {
		t.Fatalf("expected persisted analysis, got %+v", entries)
	}
}

func TestProcessKeepsRejectedFile(t *testing.T) {
	spool := t.TempDir()
	w, st := testWatcher(t, spool)

	path := filepath.Join(spool, "broken.nmon")
	if err := os.WriteFile(path, []byte("garbage\n"), 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}

	w.process(context.Background(), path)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected rejected capture left in place, got %v", err)
	}
	entries, err := st.ListAnalyses()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no analyses, got %+v", entries)
	}
}

func TestDrainExisting(t *testing.T) {
	spool := t.TempDir()
	w, st := testWatcher(t, spool)

	for i := 0; i < 2; i++ {
		path := filepath.Join(spool, fmt.Sprintf("capture-%d.nmon", i))
		if err := os.WriteFile(path, []byte(hotCapture()), 0o644); err != nil {
			t.Fatalf("write capture: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(spool, "readme.txt"), []byte("ignore"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	w.drainExisting(context.Background())

	entries, err := st.ListAnalyses()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 analyses from the spool, got %d", len(entries))
	}
}
