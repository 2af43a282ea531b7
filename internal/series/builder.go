// Package series resolves decoded record tables into named, timestamp-aligned
// numeric time series plus capture metadata.
package series

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/perfstack/nmon-insight/internal/decoder"
	"github.com/perfstack/nmon-insight/internal/models"
)

// Series name prefixes for per-instance metrics. The part after "::" is the
// raw device or interface identifier and is never aliased.
const (
	CPUBusySeries   = "cpu_busy_pct"
	MemActiveSeries = "mem_active_kb"
	MemUsedSeries   = "mem_used_kb"
	MemFreeSeries   = "mem_free_kb"
	DiskWritePrefix = "disk_write_kbps::"
	NetRxPrefix     = "net_rx_kbps::"
	NetTxPrefix     = "net_tx_kbps::"
	NetTotalSeries  = "net_total_kbps"
)

// Build resolves the raw record table into a Capture. The alias table only
// decorates per-device series with a display label; semantic keys are built
// from raw identifiers.
func Build(table *decoder.RecordTable, fileID string, aliases map[string]string) *models.Capture {
	capture := &models.Capture{
		FileID:    fileID,
		Hostname:  table.Hostname,
		StartTime: table.StartTime,
		Series:    make(map[string]*models.Series),
	}
	if capture.Hostname == "" {
		capture.Hostname = fileID
	}

	limit := table.SampleCount()

	buildCPU(capture, table, limit)
	buildMemory(capture, table, limit)
	buildDisk(capture, table, limit, aliases)
	buildNetwork(capture, table, limit, aliases)

	return capture
}

func buildCPU(capture *models.Capture, table *decoder.RecordTable, limit int) {
	tag, ok := pickSection(table, "CPU_ALL", "CPU_TOT")
	if !ok {
		return
	}
	header := table.Headers[tag]
	rows := sectionRows(table, tag, limit)
	if len(rows) == 0 {
		return
	}

	idleIdx := -1
	for i, name := range header {
		if strings.Contains(strings.ToLower(name), "idle") {
			idleIdx = i
			break
		}
	}

	s := &models.Series{Name: CPUBusySeries}
	for _, row := range rows {
		idle := math.NaN()
		if idleIdx >= 0 && idleIdx < len(row.Fields) {
			idle = parseValue(row.Fields[idleIdx])
		} else if len(row.Fields) > 0 {
			idle = parseValue(row.Fields[len(row.Fields)-1])
		}
		busy := math.NaN()
		if !math.IsNaN(idle) {
			busy = 100 - idle
		}
		s.Timestamps = append(s.Timestamps, row.Time)
		s.Values = append(s.Values, busy)
	}
	capture.Series[s.Name] = s
}

func buildMemory(capture *models.Capture, table *decoder.RecordTable, limit int) {
	header, okHeader := table.Headers["MEM"]
	rows := sectionRows(table, "MEM", limit)
	if !okHeader || len(rows) == 0 {
		return
	}

	activeIdx, usedIdx, freeIdx := -1, -1, -1
	for i, name := range header {
		lower := strings.ToLower(name)
		switch {
		case activeIdx < 0 && strings.Contains(lower, "active"):
			activeIdx = i
		case usedIdx < 0 && strings.Contains(lower, "used") && !strings.Contains(lower, "swap"):
			usedIdx = i
		case freeIdx < 0 && strings.Contains(lower, "free") && !strings.Contains(lower, "swap"):
			freeIdx = i
		}
	}

	build := func(name string, idx int) {
		s := &models.Series{Name: name}
		for _, row := range rows {
			v := math.NaN()
			if idx >= 0 && idx < len(row.Fields) {
				v = parseValue(row.Fields[idx])
			}
			s.Timestamps = append(s.Timestamps, row.Time)
			s.Values = append(s.Values, v)
		}
		capture.Series[name] = s
	}
	build(MemActiveSeries, activeIdx)
	build(MemUsedSeries, usedIdx)
	build(MemFreeSeries, freeIdx)
}

func buildDisk(capture *models.Capture, table *decoder.RecordTable, limit int, aliases map[string]string) {
	tag, ok := pickSection(table, "DISKWRITE", "DISKXFER")
	if !ok {
		return
	}
	header := table.Headers[tag]
	rows := sectionRows(table, tag, limit)
	if len(rows) == 0 {
		return
	}

	for col, device := range header {
		if device == "" {
			continue
		}
		s := &models.Series{
			Name:  DiskWritePrefix + device,
			Label: aliases[device],
		}
		for _, row := range rows {
			v := math.NaN()
			if col < len(row.Fields) {
				v = parseValue(row.Fields[col])
			}
			s.Timestamps = append(s.Timestamps, row.Time)
			s.Values = append(s.Values, v)
		}
		capture.Series[s.Name] = s
	}
}

func buildNetwork(capture *models.Capture, table *decoder.RecordTable, limit int, aliases map[string]string) {
	header, okHeader := table.Headers["NET"]
	rows := sectionRows(table, "NET", limit)
	if !okHeader || len(rows) == 0 {
		return
	}

	totals := make([]float64, len(rows))
	sawColumn := false

	for col, colName := range header {
		iface, direction, ok := splitNetColumn(colName)
		if !ok {
			continue
		}
		sawColumn = true
		prefix := NetRxPrefix
		if direction == "write" {
			prefix = NetTxPrefix
		}
		s := &models.Series{
			Name:  prefix + iface,
			Label: aliases[iface],
		}
		for i, row := range rows {
			v := math.NaN()
			if col < len(row.Fields) {
				v = parseValue(row.Fields[col])
			}
			s.Timestamps = append(s.Timestamps, row.Time)
			s.Values = append(s.Values, v)
			// Samples missing on one interface count as zero for the total.
			if !math.IsNaN(v) {
				totals[i] += v
			}
		}
		capture.Series[s.Name] = s
	}

	if sawColumn {
		total := &models.Series{Name: NetTotalSeries}
		for i, row := range rows {
			total.Timestamps = append(total.Timestamps, row.Time)
			total.Values = append(total.Values, totals[i])
		}
		capture.Series[NetTotalSeries] = total
	}
}

// splitNetColumn parses nmon NET column names of the form
// "eth0-read-KB/s" / "eth0-write-KB/s" into interface and direction.
func splitNetColumn(name string) (iface, direction string, ok bool) {
	parts := strings.Split(name, "-")
	if len(parts) < 2 {
		return "", "", false
	}
	direction = strings.ToLower(parts[1])
	if direction != "read" && direction != "write" {
		return "", "", false
	}
	return parts[0], direction, true
}

// pickSection returns the first tag that has both a header and data rows.
func pickSection(table *decoder.RecordTable, tags ...string) (string, bool) {
	for _, tag := range tags {
		if _, ok := table.Headers[tag]; !ok {
			continue
		}
		if len(table.Rows[tag]) > 0 {
			return tag, true
		}
	}
	return "", false
}

// sectionRows returns the section's rows ordered by timestamp, truncated to
// the capture's primary sample count. Series are never padded.
func sectionRows(table *decoder.RecordTable, tag string, limit int) []decoder.Row {
	rows := append([]decoder.Row(nil), table.Rows[tag]...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func parseValue(field string) float64 {
	field = strings.TrimSpace(field)
	if field == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
