// Package sidecar reads and writes the per-image annotation file: an
// 8-line free-text header followed by one coordinate line per point.
//
//	x <int|none> y <int|none>
//	靶标 <id>: x <int> y <int>
//
// Lines that match neither form are dropped. A file without any point holds
// the single sentinel line "x none y none".
package sidecar

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
)

const (
	// HeaderLines is the fixed number of header lines in a sidecar file.
	HeaderLines = 8

	// TargetLabel prefixes tagged coordinate lines.
	TargetLabel = "靶标"

	// SentinelLine marks a file without annotations.
	SentinelLine = "x none y none"

	noneToken = "none"
)

// Record is the decoded content of a sidecar file.
type Record struct {
	Header      []string `json:"header_lines"`
	Coordinates []Entry  `json:"coordinates"`
}

// Empty returns a record with no header and the sentinel entry.
func Empty() Record {
	return Record{Header: []string{}, Coordinates: []Entry{NoneEntry}}
}

// Rounding converts a floating-point coordinate to the integer written to
// disk.
type Rounding string

const (
	// Truncate casts toward zero.
	Truncate Rounding = "truncate"
	// Nearest rounds half away from zero.
	Nearest Rounding = "nearest"
)

// Apply converts v according to the rounding mode. Unknown modes truncate.
func (r Rounding) Apply(v float64) int {
	if r == Nearest {
		return int(math.Round(v))
	}
	return int(math.Trunc(v))
}

// Valid reports whether r is a known mode.
func (r Rounding) Valid() bool {
	return r == Truncate || r == Nearest
}

// Decode parses raw file content. The byte encoding is detected; the first
// HeaderLines lines are kept verbatim and the rest parsed line by line.
// Decode never fails.
func Decode(raw []byte) Record {
	text, enc := decodeText(raw)
	if enc != encodingUTF8 {
		slog.Debug("Sidecar decoded with fallback encoding", "encoding", enc)
	}
	return decodeLines(splitLines(text))
}

func decodeLines(lines []string) Record {
	n := min(HeaderLines, len(lines))
	rec := Record{Header: append([]string{}, lines[:n]...)}

	var dropped int
	for _, line := range lines[n:] {
		e, ok := ParseLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				dropped++
			}
			continue
		}
		rec.Coordinates = append(rec.Coordinates, e)
	}
	if dropped > 0 {
		slog.Debug("Dropped malformed coordinate lines", "count", dropped)
	}

	rec.Coordinates = Normalize(rec.Coordinates)
	return rec
}

// splitLines splits text into lines without terminators. A trailing newline
// does not start an extra line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// ParseLine parses a single coordinate line. It reports false for lines
// that match neither grammar.
func ParseLine(line string) (Entry, bool) {
	f := strings.Fields(line)
	switch {
	case len(f) == 4 && f[0] == "x" && f[2] == "y":
		xNone, yNone := strings.EqualFold(f[1], noneToken), strings.EqualFold(f[3], noneToken)
		if xNone && yNone {
			return NoneEntry, true
		}
		if xNone || yNone {
			return Entry{}, false
		}
		x, y, ok := parseXY(f[1], f[3])
		if !ok {
			return Entry{}, false
		}
		return PointEntry(geometry.Untagged(x, y)), true

	case len(f) == 6 && f[0] == TargetLabel && f[2] == "x" && f[4] == "y":
		id, ok := firstDigitRun(f[1])
		if !ok {
			return Entry{}, false
		}
		x, y, ok := parseXY(f[3], f[5])
		if !ok {
			return Entry{}, false
		}
		return PointEntry(geometry.Tagged(x, y, id)), true
	}
	return Entry{}, false
}

func parseXY(xs, ys string) (float64, float64, bool) {
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	return float64(x), float64(y), true
}

// firstDigitRun returns the integer value of the first run of ASCII digits
// in s.
func firstDigitRun(s string) (int, bool) {
	start := strings.IndexAny(s, "0123456789")
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	id, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0, false
	}
	return id, true
}

// Encode serializes rec with truncating coordinates. Header lines lose
// their line terminators (trailing ones stripped, embedded ones turned into
// spaces) and are otherwise written verbatim; padding them to HeaderLines
// is the caller's job.
func Encode(rec Record) []byte {
	return EncodeWith(rec, Truncate)
}

// EncodeWith serializes rec using the given rounding mode.
func EncodeWith(rec Record, rounding Rounding) []byte {
	var buf bytes.Buffer
	for _, h := range rec.Header {
		buf.WriteString(headerLine(h))
		buf.WriteByte('\n')
	}

	pts := Points(rec.Coordinates)
	if len(pts) == 0 {
		buf.WriteString(SentinelLine)
		buf.WriteByte('\n')
		return buf.Bytes()
	}
	for _, p := range pts {
		buf.WriteString(FormatPoint(p, rounding))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// FormatPoint renders one coordinate line without terminator.
func FormatPoint(p geometry.TargetPoint, rounding Rounding) string {
	x, y := rounding.Apply(p.X), rounding.Apply(p.Y)
	if p.Tagged {
		return fmt.Sprintf("%s %d: x %d y %d", TargetLabel, p.TargetID, x, y)
	}
	return fmt.Sprintf("x %d y %d", x, y)
}
