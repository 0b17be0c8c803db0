// Package resolve picks the authentic calibration board when a frame
// yields two candidate lattices.
package resolve

import (
	"sort"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
)

const (
	// PairedPoints is the point count that triggers resolution: two
	// candidate boards of nine lattice points each.
	PairedPoints = 18

	requiredGroups = 2
)

// Result describes the outcome of a resolution attempt.
type Result struct {
	Points []geometry.TargetPoint
	// Applied is false when the input did not hold exactly two target
	// groups totalling PairedPoints; Points is then the unchanged input.
	Applied   bool
	Kept      int
	Dropped   int
	Distances map[int]float64
}

// Resolve drops the false-positive board from a two-board detection. For
// each target group it measures the distance between the lexicographically
// smallest and largest point, an estimate of the board diagonal. The group
// with the larger diagonal is discarded; on equal diagonals the group with
// the lower target id is kept. Kept points keep their relative order.
func Resolve(points []geometry.TargetPoint) Result {
	passthrough := Result{Points: points}
	if len(points) != PairedPoints {
		return passthrough
	}

	groups := make(map[int][]geometry.Point)
	for _, p := range points {
		if !p.Tagged {
			return passthrough
		}
		groups[p.TargetID] = append(groups[p.TargetID], p.Point)
	}
	if len(groups) != requiredGroups {
		return passthrough
	}

	ids := make([]int, 0, requiredGroups)
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	dist := make(map[int]float64, requiredGroups)
	for _, id := range ids {
		lo, hi := geometry.Extremes(groups[id])
		dist[id] = geometry.Distance(lo, hi)
	}

	keep, drop := ids[0], ids[1]
	if dist[ids[0]] > dist[ids[1]] {
		keep, drop = ids[1], ids[0]
	}

	kept := make([]geometry.TargetPoint, 0, len(groups[keep]))
	for _, p := range points {
		if p.TargetID == keep {
			kept = append(kept, p)
		}
	}

	return Result{
		Points:    kept,
		Applied:   true,
		Kept:      keep,
		Dropped:   drop,
		Distances: dist,
	}
}
