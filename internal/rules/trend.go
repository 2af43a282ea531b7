package rules

import (
	"fmt"
	"math"

	"github.com/perfstack/nmon-insight/internal/config"
	"github.com/perfstack/nmon-insight/internal/models"
	"github.com/perfstack/nmon-insight/internal/stats"
	"github.com/perfstack/nmon-insight/internal/utils"
)

// MemoryTrendRule fits a linear regression of the designated memory series
// against elapsed minutes and flags steady growth. The R2 gate suppresses
// noisy, non-monotonic curves: a positive slope with a poor linear fit never
// fires.
type MemoryTrendRule struct{}

func (MemoryTrendRule) Name() string { return "memory_leak" }

func (r MemoryTrendRule) Evaluate(c *models.Capture, t *config.Thresholds) *models.Check {
	s := c.GetSeries(t.Memory.Series)
	if s.IsEmpty() {
		return nil
	}

	origin := c.StartTime
	if origin.IsZero() && s.Len() > 0 {
		origin = s.Timestamps[0]
	}

	xs := make([]float64, 0, s.Len())
	ys := make([]float64, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		if math.IsNaN(s.Values[i]) {
			continue
		}
		xs = append(xs, utils.MinutesSince(origin, s.Timestamps[i]))
		ys = append(ys, s.Values[i])
	}
	// Below the sample floor the data cannot support a verdict.
	if len(xs) < t.Memory.MinSamples {
		return nil
	}

	fit, ok := stats.Linear(xs, ys)
	if !ok {
		return nil
	}

	var level models.Level
	switch {
	case fit.Slope >= t.Memory.SlopeKBPerMinCrit && fit.R2 >= t.Memory.R2Min:
		level = models.LevelCrit
	case fit.Slope >= t.Memory.SlopeKBPerMinWarn && fit.R2 >= t.Memory.R2Min:
		level = models.LevelWarn
	default:
		return nil
	}

	first := s.Timestamps[0]
	last := s.Timestamps[s.Len()-1]
	return &models.Check{
		Rule:    r.Name(),
		Level:   level,
		Summary: fmt.Sprintf("%s rising %.1f KB/min (R2=%.2f)", t.Memory.Series, fit.Slope, fit.R2),
		Evidence: &models.Evidence{
			WindowStart: first,
			WindowEnd:   last,
		},
		Metrics: map[string]float64{
			"slope_kb_per_min": fit.Slope,
			"r2":               fit.R2,
		},
	}
}
