// Package srt formats transcription segments as SubRip subtitle text.
package srt

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is a single timed transcript entry.
type Segment struct {
	Text    string
	StartMs int64
	EndMs   int64
}

// Format renders segments as an SRT document: numbered entries
// (1-based) separated by a blank line, including after the last entry.
func Format(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, timestamp(seg.StartMs), timestamp(seg.EndMs), seg.Text)
	}
	return b.String()
}

// Parse reads an SRT document back into segments. Used by tests to
// assert the millisecond round-trip invariant; not used by the pipeline
// itself.
func Parse(doc string) ([]Segment, error) {
	var segments []Segment
	blocks := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.SplitN(block, "\n", 3)
		if len(lines) < 3 {
			return nil, fmt.Errorf("malformed SRT block: %q", block)
		}
		start, end, err := parseTimingLine(lines[1])
		if err != nil {
			return nil, err
		}
		segments = append(segments, Segment{Text: lines[2], StartMs: start, EndMs: end})
	}
	return segments, nil
}

func parseTimingLine(line string) (startMs, endMs int64, err error) {
	parts := strings.SplitN(line, " --> ", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timing line: %q", line)
	}
	startMs, err = parseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	endMs, err = parseTimestamp(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return startMs, endMs, nil
}

func parseTimestamp(ts string) (int64, error) {
	hms := strings.SplitN(ts, ".", 2)
	if len(hms) != 2 {
		return 0, fmt.Errorf("malformed timestamp %q: missing milliseconds", ts)
	}
	parts := strings.SplitN(hms[0], ":", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	s, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	ms, err := strconv.ParseInt(hms[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	return h*3600000 + m*60000 + s*1000 + ms, nil
}

func timestamp(ms int64) string {
	hours := ms / 3600000
	ms -= hours * 3600000
	minutes := ms / 60000
	ms -= minutes * 60000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, ms)
}
