package models

import "time"

// Series is a named sequence of (timestamp, value) samples for one metric
// instance. Timestamps are strictly non-decreasing. An empty series is valid
// and means "metric absent" — rules treat it as insufficient data, never as
// an error.
type Series struct {
	Name       string
	Label      string
	Timestamps []time.Time
	Values     []float64
}

// IsEmpty reports whether the series carries no samples.
func (s *Series) IsEmpty() bool {
	return s == nil || len(s.Timestamps) == 0 || len(s.Values) == 0
}

// Len returns the number of usable samples (shorter of the two slices).
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	if len(s.Timestamps) < len(s.Values) {
		return len(s.Timestamps)
	}
	return len(s.Values)
}

// DisplayName returns the alias label when present, otherwise the semantic key.
func (s *Series) DisplayName() string {
	if s == nil {
		return ""
	}
	if s.Label != "" {
		return s.Label
	}
	return s.Name
}

// Capture is one performance-monitoring recording session for a host.
// Immutable after construction by the series builder.
type Capture struct {
	FileID    string
	Hostname  string
	StartTime time.Time
	Series    map[string]*Series
}

// GetSeries returns the series under the semantic key, or nil.
func (c *Capture) GetSeries(name string) *Series {
	if c == nil {
		return nil
	}
	return c.Series[name]
}
