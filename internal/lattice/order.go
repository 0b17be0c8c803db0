package lattice

import "github.com/MeKo-Tech/gcpmark/internal/geometry"

type indexMap func(i, j int) (r, c int)

// CanonicalOrder re-indexes a rows×cols lattice so it starts at the
// top-left corner and runs left to right, then top to bottom. The corner
// finder may report a symmetric pattern starting from any corner; the
// outer four lattice points decide the orientation. Input that matches no
// orientation is returned unchanged.
func CanonicalOrder(pts []geometry.Point, rows, cols int) []geometry.Point {
	if rows < 2 || cols < 2 || len(pts) != rows*cols {
		return pts
	}

	at := func(r, c int) geometry.Point { return pts[r*cols+c] }
	q, err := geometry.OrderCorners([]geometry.Point{
		at(0, 0), at(0, cols-1), at(rows-1, cols-1), at(rows-1, 0),
	})
	if err != nil {
		return pts
	}

	maps := []indexMap{
		func(i, j int) (int, int) { return i, j },
		func(i, j int) (int, int) { return i, cols - 1 - j },
		func(i, j int) (int, int) { return rows - 1 - i, j },
		func(i, j int) (int, int) { return rows - 1 - i, cols - 1 - j },
	}
	if rows == cols {
		n := rows
		maps = append(maps,
			func(i, j int) (int, int) { return j, i },
			func(i, j int) (int, int) { return n - 1 - j, i },
			func(i, j int) (int, int) { return j, n - 1 - i },
			func(i, j int) (int, int) { return n - 1 - j, n - 1 - i },
		)
	}

	for _, m := range maps {
		r0, c0 := m(0, 0)
		r1, c1 := m(0, cols-1)
		if at(r0, c0) != q[0] || at(r1, c1) != q[1] {
			continue
		}
		out := make([]geometry.Point, 0, len(pts))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				out = append(out, at(m(i, j)))
			}
		}
		return out
	}
	return pts
}
