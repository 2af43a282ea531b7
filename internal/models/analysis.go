package models

import "time"

// Level is a check severity. Levels are totally ordered: OK < WARN < CRIT.
type Level string

const (
	LevelOK   Level = "OK"
	LevelWarn Level = "WARN"
	LevelCrit Level = "CRIT"
)

// Rank maps a level onto its position in the severity order.
func (l Level) Rank() int {
	switch l {
	case LevelCrit:
		return 2
	case LevelWarn:
		return 1
	default:
		return 0
	}
}

// MaxLevel returns the more severe of two levels.
func MaxLevel(a, b Level) Level {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Evidence cites the offending window behind a fired check.
type Evidence struct {
	WindowStart time.Time
	WindowEnd   time.Time
}

// Check is the outcome of one rule evaluation against a capture.
type Check struct {
	Rule     string
	Level    Level
	Summary  string
	Evidence *Evidence
	Metrics  map[string]float64
}

// Analysis is the full verdict for one capture: the fired checks in rule
// registration order plus the derived overall level.
type Analysis struct {
	FileID    string
	Hostname  string
	StartTime time.Time
	Overall   Level
	Checks    []Check
}

// CorpusSummary aggregates many analyses: captures per overall level and
// individual WARN/CRIT check tallies. Always derived, never persisted
// independently of its sources.
type CorpusSummary struct {
	TotalFiles int `json:"total_files"`
	OKFiles    int `json:"ok_files"`
	WarnFiles  int `json:"warn_files"`
	CritFiles  int `json:"crit_files"`
	WarnChecks int `json:"warn_checks"`
	CritChecks int `json:"crit_checks"`
}
