package rules

import "github.com/perfstack/nmon-insight/internal/models"

// Overall reduces a capture's checks to one level: the maximum severity
// among them, OK when none fired.
func Overall(checks []models.Check) models.Level {
	level := models.LevelOK
	for _, check := range checks {
		level = models.MaxLevel(level, check.Level)
	}
	return level
}

// Summarize folds many analyses into corpus-wide counts. A capture counts
// once per overall level; every fired WARN/CRIT check counts individually,
// so one CRIT capture with three CRIT checks adds 3 to CritChecks and 1 to
// CritFiles.
func Summarize(analyses []models.Analysis) models.CorpusSummary {
	summary := models.CorpusSummary{TotalFiles: len(analyses)}
	for _, analysis := range analyses {
		switch analysis.Overall {
		case models.LevelCrit:
			summary.CritFiles++
		case models.LevelWarn:
			summary.WarnFiles++
		default:
			summary.OKFiles++
		}
		for _, check := range analysis.Checks {
			switch check.Level {
			case models.LevelCrit:
				summary.CritChecks++
			case models.LevelWarn:
				summary.WarnChecks++
			}
		}
	}
	return summary
}
