package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
)

// Entry is one annotation: either the explicit "no annotation" sentinel or
// a target point.
type Entry struct {
	geometry.TargetPoint
	None bool
}

// NoneEntry is the explicit "no annotation" sentinel.
var NoneEntry = Entry{None: true}

// PointEntry wraps a target point.
func PointEntry(p geometry.TargetPoint) Entry {
	return Entry{TargetPoint: p}
}

// Entries wraps target points.
func Entries(pts []geometry.TargetPoint) []Entry {
	out := make([]Entry, len(pts))
	for i, p := range pts {
		out[i] = Entry{TargetPoint: p}
	}
	return out
}

// Points returns the non-sentinel entries as target points.
func Points(entries []Entry) []geometry.TargetPoint {
	out := make([]geometry.TargetPoint, 0, len(entries))
	for _, e := range entries {
		if !e.None {
			out = append(out, e.TargetPoint)
		}
	}
	return out
}

// Normalize drops sentinels unless nothing else remains, in which case the
// result is the single sentinel.
func Normalize(entries []Entry) []Entry {
	pts := Points(entries)
	if len(pts) == 0 {
		return []Entry{NoneEntry}
	}
	return Entries(pts)
}

// MarshalJSON encodes the sentinel as null and points as [x, y] or
// [x, y, targetId], the tuple form the labeling UI exchanges.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.None {
		return []byte("null"), nil
	}
	if e.Tagged {
		return json.Marshal([]float64{e.X, e.Y, float64(e.TargetID)})
	}
	return json.Marshal([]float64{e.X, e.Y})
}

// UnmarshalJSON accepts null, a 2 or 3 element array, or an object with
// x, y and optional target_id fields.
func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = NoneEntry
		return nil
	}

	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			X        float64 `json:"x"`
			Y        float64 `json:"y"`
			TargetID *int    `json:"target_id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.TargetID != nil {
			*e = PointEntry(geometry.Tagged(obj.X, obj.Y, *obj.TargetID))
		} else {
			*e = PointEntry(geometry.Untagged(obj.X, obj.Y))
		}
		return nil
	}

	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("coordinate entry: %w", err)
	}
	switch len(vals) {
	case 2:
		*e = PointEntry(geometry.Untagged(vals[0], vals[1]))
	case 3:
		*e = PointEntry(geometry.Tagged(vals[0], vals[1], int(vals[2])))
	default:
		return fmt.Errorf("coordinate entry: want 2 or 3 values, got %d", len(vals))
	}
	return nil
}

func (e Entry) String() string {
	if e.None {
		return "None"
	}
	if e.Tagged {
		return fmt.Sprintf("(%g, %g, target=%d)", e.X, e.Y, e.TargetID)
	}
	return fmt.Sprintf("(%g, %g)", e.X, e.Y)
}
