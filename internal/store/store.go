// Package store persists analysis artifacts on disk: the original capture
// upload, the analysis JSON, and a small index for listings.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/perfstack/nmon-insight/internal/models"
	"github.com/perfstack/nmon-insight/internal/utils"
)

// ErrNotFound indicates the requested analysis does not exist.
var ErrNotFound = errors.New("analysis not found")

// IndexEntry is one row of the store's listing index.
type IndexEntry struct {
	FileID    string       `json:"file_id"`
	Hostname  string       `json:"hostname"`
	StartTime string       `json:"start_time,omitempty"`
	Overall   models.Level `json:"overall"`
}

// Store handles saving and loading analysis outputs on disk.
type Store struct {
	mu          sync.Mutex
	basePath    string
	uploadDir   string
	analysisDir string
	indexPath   string
}

// New prepares the store directories under basePath.
func New(basePath string) (*Store, error) {
	s := &Store{
		basePath:    basePath,
		uploadDir:   filepath.Join(basePath, "uploads"),
		analysisDir: filepath.Join(basePath, "analyses"),
		indexPath:   filepath.Join(basePath, "index.json"),
	}
	for _, dir := range []string{s.uploadDir, s.analysisDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, utils.NewAppError("store.New", "create directory", err)
		}
	}
	if _, err := os.Stat(s.indexPath); errors.Is(err, os.ErrNotExist) {
		if err := s.writeIndex(nil); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GenerateFileID builds a unique capture identifier from the upload stem.
func (s *Store) GenerateFileID(stem string) string {
	var b strings.Builder
	for _, ch := range stem {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			b.WriteRune(ch)
		default:
			b.WriteRune('-')
		}
	}
	safe := b.String()
	if safe == "" {
		safe = "nmon"
	}
	return fmt.Sprintf("%s-%x", safe, time.Now().UnixNano())
}

// SaveAnalysis writes the analysis JSON, copies the original capture file
// next to it, and refreshes the index entry.
func (s *Store) SaveAnalysis(analysis models.Analysis, capturePath string) error {
	if err := copyFile(capturePath, s.UploadPath(analysis.FileID)); err != nil {
		return utils.NewAppError("store.SaveAnalysis", "copy upload", err)
	}

	payload := analysis.ToPayload()
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return utils.NewAppError("store.SaveAnalysis", "encode analysis", err)
	}
	if err := os.WriteFile(s.analysisPath(analysis.FileID), data, 0o644); err != nil {
		return utils.NewAppError("store.SaveAnalysis", "write analysis", err)
	}

	entry := IndexEntry{
		FileID:   analysis.FileID,
		Hostname: analysis.Hostname,
		Overall:  analysis.Overall,
	}
	if !analysis.StartTime.IsZero() {
		entry.StartTime = analysis.StartTime.Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readIndex()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.FileID != entry.FileID {
			kept = append(kept, e)
		}
	}
	kept = append(kept, entry)
	return s.writeIndex(kept)
}

// LoadAnalysis reads a stored analysis payload by id.
func (s *Store) LoadAnalysis(fileID string) (models.AnalysisPayload, error) {
	var payload models.AnalysisPayload
	data, err := os.ReadFile(s.analysisPath(fileID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return payload, ErrNotFound
		}
		return payload, utils.NewAppError("store.LoadAnalysis", "read analysis", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, utils.NewAppError("store.LoadAnalysis", "decode analysis", err)
	}
	return payload, nil
}

// ListAnalyses returns index entries, newest capture first.
func (s *Store) ListAnalyses() ([]IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTime > entries[j].StartTime
	})
	return entries, nil
}

// UploadPath returns where the original capture for fileID lives.
func (s *Store) UploadPath(fileID string) string {
	return filepath.Join(s.uploadDir, fileID+".nmon")
}

// Clear removes every stored artifact and resets the index.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dir := range []string{s.uploadDir, s.analysisDir} {
		if err := os.RemoveAll(dir); err != nil {
			return utils.NewAppError("store.Clear", "remove directory", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return utils.NewAppError("store.Clear", "recreate directory", err)
		}
	}
	return s.writeIndex(nil)
}

func (s *Store) analysisPath(fileID string) string {
	return filepath.Join(s.analysisDir, fileID+".json")
}

func (s *Store) readIndex() ([]IndexEntry, error) {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, utils.NewAppError("store.readIndex", "read index", err)
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt index is recoverable: start over rather than wedge.
		return nil, nil
	}
	return entries, nil
}

func (s *Store) writeIndex(entries []IndexEntry) error {
	if entries == nil {
		entries = []IndexEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return utils.NewAppError("store.writeIndex", "encode index", err)
	}
	if err := os.WriteFile(s.indexPath, data, 0o644); err != nil {
		return utils.NewAppError("store.writeIndex", "write index", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
