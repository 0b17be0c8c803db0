package boxdetect

import (
	"fmt"
	"sort"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/mempool"
)

// DecodeYOLO turns a [1, 4+C, N] prediction tensor into candidate boxes.
// Rows 0..3 hold cx, cy, w, h; the remaining rows hold per-class scores.
// Candidates below minConfidence are discarded.
func DecodeYOLO(data []float32, shape []int64, minConfidence float64) ([]geometry.Box, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("expected output shape [1, 4+C, N], got %v", shape)
	}
	rows, n := int(shape[1]), int(shape[2])
	if rows < 5 {
		return nil, fmt.Errorf("expected at least 5 rows per prediction, got %d", rows)
	}
	if len(data) != rows*n {
		return nil, fmt.Errorf("output length %d does not match shape %v", len(data), shape)
	}

	at := func(r, i int) float64 { return float64(data[r*n+i]) }

	var boxes []geometry.Box
	for i := range n {
		best, class := 0.0, -1
		for c := 4; c < rows; c++ {
			if s := at(c, i); s > best {
				best, class = s, c-4
			}
		}
		if class < 0 || best < minConfidence {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		boxes = append(boxes, geometry.Box{
			X1:         cx - w/2,
			Y1:         cy - h/2,
			X2:         cx + w/2,
			Y2:         cy + h/2,
			Confidence: best,
			ClassID:    class,
		})
	}
	return boxes, nil
}

// NonMaxSuppression keeps the highest-confidence box of every overlapping
// cluster. Boxes overlap when their IoU exceeds iouThreshold. The result is
// ordered by descending confidence.
func NonMaxSuppression(boxes []geometry.Box, iouThreshold float64) []geometry.Box {
	if len(boxes) <= 1 {
		return boxes
	}

	sorted := make([]geometry.Box, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	suppressed := mempool.GetBool(len(sorted))
	defer mempool.PutBool(suppressed)
	kept := make([]geometry.Box, 0, len(sorted))
	for a := range sorted {
		if suppressed[a] {
			continue
		}
		kept = append(kept, sorted[a])
		for b := a + 1; b < len(sorted); b++ {
			if !suppressed[b] && geometry.IoU(sorted[a], sorted[b]) > iouThreshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}
