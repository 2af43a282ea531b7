package models

import (
	"math"
	"time"
)

// SeriesPayload is the wire shape for one time series.
type SeriesPayload struct {
	Label      string    `json:"label,omitempty"`
	Timestamps []string  `json:"timestamps"`
	Values     []float64 `json:"values"`
}

// CheckPayload is the wire shape for one fired check.
type CheckPayload struct {
	Rule        string             `json:"rule"`
	Level       Level              `json:"level"`
	Summary     string             `json:"summary"`
	WindowStart string             `json:"window_start,omitempty"`
	WindowEnd   string             `json:"window_end,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// AnalysisPayload is the wire shape for one capture's verdict.
type AnalysisPayload struct {
	FileID    string         `json:"file_id"`
	Hostname  string         `json:"hostname"`
	StartTime string         `json:"start_time,omitempty"`
	Overall   Level          `json:"overall"`
	Checks    []CheckPayload `json:"checks"`
}

// ToPayload converts an Analysis into its JSON representation.
func (a Analysis) ToPayload() AnalysisPayload {
	payload := AnalysisPayload{
		FileID:   a.FileID,
		Hostname: a.Hostname,
		Overall:  a.Overall,
		Checks:   make([]CheckPayload, 0, len(a.Checks)),
	}
	if !a.StartTime.IsZero() {
		payload.StartTime = a.StartTime.Format(time.RFC3339)
	}
	for _, check := range a.Checks {
		cp := CheckPayload{
			Rule:    check.Rule,
			Level:   check.Level,
			Summary: check.Summary,
			Metrics: check.Metrics,
		}
		if check.Evidence != nil {
			cp.WindowStart = check.Evidence.WindowStart.Format(time.RFC3339)
			cp.WindowEnd = check.Evidence.WindowEnd.Format(time.RFC3339)
		}
		payload.Checks = append(payload.Checks, cp)
	}
	return payload
}

// ToPayload converts a series into its JSON representation, downsampling by
// stride so the payload never exceeds maxPoints. maxPoints <= 0 means no cap.
// NaN samples are not representable in JSON and are dropped; charts render
// the gap.
func (s *Series) ToPayload(maxPoints int) SeriesPayload {
	n := s.Len()
	step := 1
	if maxPoints > 0 && n > maxPoints {
		step = n / maxPoints
		if step < 1 {
			step = 1
		}
	}
	payload := SeriesPayload{
		Label:      s.Label,
		Timestamps: make([]string, 0, n/step+1),
		Values:     make([]float64, 0, n/step+1),
	}
	for i := 0; i < n; i += step {
		if math.IsNaN(s.Values[i]) {
			continue
		}
		payload.Timestamps = append(payload.Timestamps, s.Timestamps[i].Format(time.RFC3339))
		payload.Values = append(payload.Values, s.Values[i])
	}
	return payload
}
