// Package services orchestrates the decode -> build -> evaluate flow for
// captures and exposes it as an independent unit of work per file.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/perfstack/nmon-insight/internal/config"
	"github.com/perfstack/nmon-insight/internal/decoder"
	"github.com/perfstack/nmon-insight/internal/metrics"
	"github.com/perfstack/nmon-insight/internal/models"
	"github.com/perfstack/nmon-insight/internal/rules"
	"github.com/perfstack/nmon-insight/internal/series"
	"github.com/perfstack/nmon-insight/internal/stats"
	"github.com/perfstack/nmon-insight/internal/store"
	"github.com/perfstack/nmon-insight/internal/utils"
)

// Analyzer runs the full per-capture pipeline. Analyses of different
// captures share only the read-only thresholds and alias tables, so callers
// may analyze many files concurrently.
type Analyzer struct {
	logger     *slog.Logger
	engine     *rules.Engine
	thresholds *config.Thresholds
	aliases    map[string]string
	store      *store.Store
	latencies  *utils.LatencyTracker
}

// NewAnalyzer constructs the analyzer service. The store may be nil when
// persistence is not wanted.
func NewAnalyzer(logger *slog.Logger, engine *rules.Engine, thresholds *config.Thresholds, aliases map[string]string, st *store.Store) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = rules.NewEngine(logger)
	}
	return &Analyzer{
		logger:     logger,
		engine:     engine,
		thresholds: thresholds,
		aliases:    aliases,
		store:      st,
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// AnalyzeReader decodes a capture from r and evaluates every rule. The
// returned capture carries the full series set for presentation layers.
func (a *Analyzer) AnalyzeReader(r io.Reader, fileID string) (*models.Capture, models.Analysis, error) {
	start := time.Now()

	table, err := decoder.Decode(r)
	if err != nil {
		metrics.ObserveAnalysis(time.Since(start), metrics.OutcomeError)
		return nil, models.Analysis{}, fmt.Errorf("decode %s: %w", fileID, err)
	}

	capture := series.Build(table, fileID, a.aliases)
	analysis := a.engine.Analyze(capture, a.thresholds)

	duration := time.Since(start)
	a.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	metrics.ObserveLevel(analysis.Overall)

	a.logger.Info("capture analyzed",
		slog.String("file_id", fileID),
		slog.String("hostname", capture.Hostname),
		slog.String("overall", string(analysis.Overall)),
		slog.Int("series", len(capture.Series)),
		slog.Float64("sampling_min", stats.SamplingMinutes(table.Timestamps)),
		slog.Duration("took", duration))

	if count := a.latencies.Count(); count >= 20 && count%20 == 0 {
		a.logger.Info("analysis latency", slog.Duration("p95", a.latencies.Percentile(95)), slog.Int("samples", count))
	}

	return capture, analysis, nil
}

// AnalyzeFile analyzes the capture at path, persisting the result when a
// store is configured. The generated file id is derived from the file stem.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (models.Analysis, error) {
	return a.AnalyzeUpload(ctx, path, filepath.Base(path))
}

// AnalyzeUpload analyzes the capture at path under the uploader's original
// file name, which seeds the generated file id.
func (a *Analyzer) AnalyzeUpload(ctx context.Context, path, originalName string) (models.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return models.Analysis{}, err
	}

	fileID := a.fileID(originalName)
	table, err := decoder.DecodeFile(path)
	if err != nil {
		metrics.ObserveAnalysis(0, metrics.OutcomeError)
		return models.Analysis{}, fmt.Errorf("decode %s: %w", path, err)
	}

	start := time.Now()
	capture := series.Build(table, fileID, a.aliases)
	analysis := a.engine.Analyze(capture, a.thresholds)
	duration := time.Since(start)

	a.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	metrics.ObserveLevel(analysis.Overall)

	if a.store != nil {
		if err := a.store.SaveAnalysis(analysis, path); err != nil {
			a.logger.Warn("failed to persist analysis", slog.String("file_id", fileID), slog.Any("error", err))
		}
	}

	a.logger.Info("capture analyzed",
		slog.String("file_id", fileID),
		slog.String("hostname", capture.Hostname),
		slog.String("overall", string(analysis.Overall)),
		slog.Float64("sampling_min", stats.SamplingMinutes(table.Timestamps)))

	return analysis, nil
}

// BatchResult pairs a capture path with its analysis or failure. A decode
// failure marks one file as unprocessed without aborting the batch.
type BatchResult struct {
	Path     string
	Analysis models.Analysis
	Err      error
}

// AnalyzeBatch fans the paths out over a bounded worker pool. Each capture
// is an independent unit of work; no state is shared beyond the read-only
// configuration, so no locking is needed around the pipeline itself.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, paths []string, workers int) []BatchResult {
	if workers <= 0 {
		workers = 4
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	results := make([]BatchResult, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				analysis, err := a.AnalyzeFile(ctx, paths[i])
				results[i] = BatchResult{Path: paths[i], Analysis: analysis, Err: err}
			}
		}()
	}

dispatch:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for i := range results {
		if results[i].Path == "" {
			results[i] = BatchResult{Path: paths[i], Err: ctx.Err()}
		}
	}

	return results
}

// Summarize folds analyses into corpus-wide counts.
func (a *Analyzer) Summarize(analyses []models.Analysis) models.CorpusSummary {
	return rules.Summarize(analyses)
}

// Store exposes the artifact store, nil when persistence is disabled.
func (a *Analyzer) Store() *store.Store { return a.store }

// Thresholds exposes the immutable rule configuration.
func (a *Analyzer) Thresholds() *config.Thresholds { return a.thresholds }

// LatencyP95 returns the current p95 analysis latency.
func (a *Analyzer) LatencyP95() time.Duration {
	return a.latencies.Percentile(95)
}

func (a *Analyzer) fileID(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if a.store != nil {
		return a.store.GenerateFileID(stem)
	}
	if stem == "" {
		return "nmon"
	}
	return stem
}
