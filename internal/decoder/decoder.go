// Package decoder turns raw nmon capture text into per-section record
// tables. It understands three tag families: one-time host metadata (AAA),
// timestamp labels (ZZZZ), and metric sections whose header line declares
// sub-columns for the repeating data lines that follow.
package decoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// ErrNoSamples indicates a capture with no timestamp records at all. Such a
// file is unusable, not merely empty.
var ErrNoSamples = errors.New("no timestamp records in capture")

var sampleLabelRe = regexp.MustCompile(`^T\d+$`)

var timeLayouts = []string{
	"02-Jan-2006 15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

// Row is one repeating data line bound to its sample timestamp.
type Row struct {
	Time   time.Time
	Fields []string
}

// RecordTable groups a capture's raw records by line-type tag.
type RecordTable struct {
	Hostname  string
	StartTime time.Time

	// Timestamps is the capture's primary timestamp sequence, in sample
	// index order.
	Timestamps []time.Time
	// Headers maps a section tag to its declared sub-column names.
	Headers map[string][]string
	// Rows maps a section tag to its data lines in file order.
	Rows map[string][]Row
}

// SampleCount returns the number of timestamp records seen.
func (t *RecordTable) SampleCount() int { return len(t.Timestamps) }

// DecodeFile decodes the capture at path.
func DecodeFile(path string) (*RecordTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses raw capture text into a RecordTable. It fails only when the
// capture carries no timestamp records; section-local inconsistencies (data
// before header, malformed field counts) drop that section's rows and leave
// the rest of the file intact. Unknown tags are ignored.
func Decode(r io.Reader) (*RecordTable, error) {
	table := &RecordTable{
		Headers: make(map[string][]string),
		Rows:    make(map[string][]Row),
	}
	labels := make(map[string]time.Time)
	bad := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := splitFields(line)
		if len(parts) < 2 {
			continue
		}
		tag := parts[0]

		switch tag {
		case "AAA":
			if len(parts) >= 3 {
				label := strings.ToLower(parts[1])
				if label == "hostname" || label == "host" {
					table.Hostname = parts[2]
				}
			}
		case "ZZZZ":
			if len(parts) >= 4 && sampleLabelRe.MatchString(parts[1]) {
				if ts, ok := parseTimestamp(parts[2], parts[3]); ok {
					if len(table.Timestamps) == 0 {
						table.StartTime = ts
					}
					labels[parts[1]] = ts
					table.Timestamps = append(table.Timestamps, ts)
				}
			}
		default:
			if sampleLabelRe.MatchString(parts[1]) {
				decodeDataLine(table, labels, bad, tag, parts)
				continue
			}
			// Header line: tag, description, sub-columns. First declaration wins.
			if _, seen := table.Headers[tag]; !seen {
				table.Headers[tag] = parts[2:]
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}

	for tag := range bad {
		delete(table.Rows, tag)
	}

	if len(table.Timestamps) == 0 {
		return nil, ErrNoSamples
	}
	return table, nil
}

func decodeDataLine(table *RecordTable, labels map[string]time.Time, bad map[string]bool, tag string, parts []string) {
	if bad[tag] {
		return
	}
	header, ok := table.Headers[tag]
	if !ok {
		// Data before its header poisons this section only.
		bad[tag] = true
		return
	}
	fields := parts[2:]
	if len(fields) != len(header) {
		bad[tag] = true
		return
	}
	ts, ok := labels[parts[1]]
	if !ok {
		// Unknown sample label: drop the row, not the section.
		return
	}
	table.Rows[tag] = append(table.Rows[tag], Row{Time: ts, Fields: fields})
}

// splitFields splits a capture line on comma or semicolon delimiters,
// trimming surrounding whitespace and preserving empty positions so that
// positional columns never shift.
func splitFields(line string) []string {
	parts := strings.Split(strings.ReplaceAll(line, ";", ","), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseTimestamp(timeStr, dateStr string) (time.Time, bool) {
	joined := dateStr + " " + timeStr
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, joined); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
