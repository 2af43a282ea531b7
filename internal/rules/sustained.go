package rules

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/perfstack/nmon-insight/internal/config"
	"github.com/perfstack/nmon-insight/internal/models"
	"github.com/perfstack/nmon-insight/internal/series"
	"github.com/perfstack/nmon-insight/internal/stats"
	"github.com/perfstack/nmon-insight/internal/utils"
)

// findSustainedRun walks samples in order looking for the first maximal
// contiguous run of values >= threshold whose time span reaches minMinutes.
// The bound is inclusive: a run of exactly minMinutes qualifies. Short
// bursts below the floor never qualify, whatever their magnitude.
func findSustainedRun(s *models.Series, threshold, minMinutes float64) (models.Evidence, float64, bool) {
	n := s.Len()
	runStart := -1
	peak := math.Inf(-1)

	for i := 0; i <= n; i++ {
		inRun := false
		if i < n {
			v := s.Values[i]
			inRun = !math.IsNaN(v) && v >= threshold
		}
		if inRun {
			if runStart < 0 {
				runStart = i
				peak = s.Values[i]
			} else if s.Values[i] > peak {
				peak = s.Values[i]
			}
			continue
		}
		if runStart >= 0 {
			start, end := s.Timestamps[runStart], s.Timestamps[i-1]
			if utils.DurationMinutes(start, end) >= minMinutes {
				return models.Evidence{WindowStart: start, WindowEnd: end}, peak, true
			}
			runStart = -1
		}
	}
	return models.Evidence{}, 0, false
}

// evaluateSustained applies CRIT-first precedence over a single series:
// one check at most, citing the qualifying run.
func evaluateSustained(rule string, s *models.Series, warn, crit, minMinutes float64, unit string) *models.Check {
	if s.IsEmpty() {
		return nil
	}
	if evidence, peak, ok := findSustainedRun(s, crit, minMinutes); ok {
		return sustainedCheck(rule, models.LevelCrit, s, crit, peak, minMinutes, unit, evidence)
	}
	if evidence, peak, ok := findSustainedRun(s, warn, minMinutes); ok {
		return sustainedCheck(rule, models.LevelWarn, s, warn, peak, minMinutes, unit, evidence)
	}
	return nil
}

func sustainedCheck(rule string, level models.Level, s *models.Series, threshold, peak, minMinutes float64, unit string, evidence models.Evidence) *models.Check {
	span := utils.DurationMinutes(evidence.WindowStart, evidence.WindowEnd)
	return &models.Check{
		Rule:    rule,
		Level:   level,
		Summary: fmt.Sprintf("sustained >= %.1f %s for %.1f min (peak %.1f)", threshold, unit, span, peak),
		Evidence: &models.Evidence{
			WindowStart: evidence.WindowStart,
			WindowEnd:   evidence.WindowEnd,
		},
		Metrics: map[string]float64{
			"threshold":   threshold,
			"peak":        peak,
			"p95":         finitePercentile(s, 95),
			"run_minutes": span,
			"floor_min":   minMinutes,
		},
	}
}

// finitePercentile drops NaN samples before ranking. A fired check implies
// at least one finite sample, so the result is always representable.
func finitePercentile(s *models.Series, p float64) float64 {
	values := make([]float64, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		if !math.IsNaN(s.Values[i]) {
			values = append(values, s.Values[i])
		}
	}
	return stats.Percentile(values, p)
}

// CPURule flags sustained CPU saturation on cpu_busy_pct.
type CPURule struct{}

func (CPURule) Name() string { return "cpu_sustained_high" }

func (r CPURule) Evaluate(c *models.Capture, t *config.Thresholds) *models.Check {
	s := c.GetSeries(series.CPUBusySeries)
	if s.IsEmpty() {
		return nil
	}
	return evaluateSustained(r.Name(), s, t.CPU.BusyPctWarn, t.CPU.BusyPctCrit, t.CPU.SustainedMinutes, "%")
}

// EMMCWriteRule flags sustained write bandwidth across eMMC devices.
type EMMCWriteRule struct{}

func (EMMCWriteRule) Name() string { return "excessive_emmc_writes" }

func (r EMMCWriteRule) Evaluate(c *models.Capture, t *config.Thresholds) *models.Check {
	matched := matchingSeries(c, series.DiskWritePrefix, t.DeviceRe())
	if len(matched) == 0 {
		return nil
	}
	aggregate := combineByIndex("emmc_write_kbps", matched)
	return evaluateSustained(r.Name(), aggregate, t.EMMC.KbpsWarn, t.EMMC.KbpsCrit, t.EMMC.SustainedMinutes, "KB/s")
}

// NetworkRule flags sustained throughput over the included interfaces,
// falling back to the derived total when none match.
type NetworkRule struct{}

func (NetworkRule) Name() string { return "excessive_network_usage" }

func (r NetworkRule) Evaluate(c *models.Capture, t *config.Thresholds) *models.Check {
	matched := matchingSeries(c, series.NetRxPrefix, t.IfaceRe())
	matched = append(matched, matchingSeries(c, series.NetTxPrefix, t.IfaceRe())...)

	var aggregate *models.Series
	if len(matched) > 0 {
		aggregate = combineByIndex("net_included_kbps", matched)
	} else {
		aggregate = c.GetSeries(series.NetTotalSeries)
	}
	if aggregate.IsEmpty() {
		return nil
	}
	return evaluateSustained(r.Name(), aggregate, t.Network.KbpsWarn, t.Network.KbpsCrit, t.Network.SustainedMinutes, "KB/s")
}

// matchingSeries returns the capture's series under prefix whose raw
// identifier (the part after "::") matches re.
func matchingSeries(c *models.Capture, prefix string, re *regexp.Regexp) []*models.Series {
	if re == nil {
		return nil
	}
	matched := make([]*models.Series, 0)
	for name, s := range c.Series {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		id := name[len(prefix):]
		if re.MatchString(id) {
			matched = append(matched, s)
		}
	}
	// Map iteration order is random; keep evaluation deterministic.
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return matched
}

// combineByIndex sums series sample-by-sample over the first series'
// timestamp domain. Samples missing in one series at an index present in
// another count as zero, never as missing.
func combineByIndex(name string, list []*models.Series) *models.Series {
	if len(list) == 0 {
		return &models.Series{Name: name}
	}
	base := list[0]
	out := &models.Series{
		Name:       name,
		Timestamps: append([]time.Time(nil), base.Timestamps[:base.Len()]...),
		Values:     make([]float64, base.Len()),
	}
	for _, s := range list {
		n := s.Len()
		for i := 0; i < len(out.Values); i++ {
			if i < n && !math.IsNaN(s.Values[i]) {
				out.Values[i] += s.Values[i]
			}
		}
	}
	return out
}
