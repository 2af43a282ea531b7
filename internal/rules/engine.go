// Package rules evaluates health rules over a capture's series set and
// aggregates severities across captures.
package rules

import (
	"log/slog"

	"github.com/perfstack/nmon-insight/internal/config"
	"github.com/perfstack/nmon-insight/internal/models"
)

// Evaluator is one health rule: a pure function of (series set, thresholds)
// producing zero or one check. Evaluators must not observe each other's
// output and must not mutate the capture or the thresholds.
type Evaluator interface {
	Name() string
	Evaluate(c *models.Capture, t *config.Thresholds) *models.Check
}

// Engine holds the ordered, fixed list of rule evaluators. Registration
// happens at construction time; the list never changes afterwards.
type Engine struct {
	logger     *slog.Logger
	evaluators []Evaluator
}

// NewEngine constructs the engine with the standard rule set in its fixed
// evaluation order.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		evaluators: []Evaluator{
			CPURule{},
			MemoryTrendRule{},
			EMMCWriteRule{},
			NetworkRule{},
		},
	}
}

// Rules returns the registered rule names in evaluation order.
func (e *Engine) Rules() []string {
	names := make([]string, 0, len(e.evaluators))
	for _, ev := range e.evaluators {
		names = append(names, ev.Name())
	}
	return names
}

// Analyze runs every registered rule against the capture and derives the
// overall level. Checks appear in registration order; rules that do not fire
// contribute nothing (OK is implicit).
func (e *Engine) Analyze(c *models.Capture, t *config.Thresholds) models.Analysis {
	analysis := models.Analysis{
		FileID:    c.FileID,
		Hostname:  c.Hostname,
		StartTime: c.StartTime,
		Overall:   models.LevelOK,
	}
	for _, ev := range e.evaluators {
		check := ev.Evaluate(c, t)
		if check == nil {
			continue
		}
		analysis.Checks = append(analysis.Checks, *check)
		analysis.Overall = models.MaxLevel(analysis.Overall, check.Level)
		e.logger.Debug("rule fired",
			slog.String("file_id", c.FileID),
			slog.String("rule", check.Rule),
			slog.String("level", string(check.Level)))
	}
	return analysis
}
