// Package imaging implements the splitter's tile-grid geometry and the
// preprocessor's crop/pad/normalize pipeline.
package imaging

import "tiledetect/pkg/imagejob"

// axisStarts computes tile-start offsets along one axis. step = subsize - gap;
// starts walk 0, step, 2*step, ... until the next start would produce a tile
// exceeding extent, at which point one final interval of length subsize is
// aligned to the far edge instead.
func axisStarts(extent, subsize, gap int) []int {
	step := subsize - gap
	if step <= 0 {
		step = subsize
	}

	var starts []int
	s := 0
	for {
		starts = append(starts, s)
		if s+subsize >= extent {
			break
		}
		next := s + step
		if next+subsize > extent {
			starts = append(starts, extent-subsize)
			break
		}
		s = next
	}
	return starts
}

// TileGrid returns the Cartesian product of row and column intervals covering a
// width x height image, in row-major order.
func TileGrid(width, height, subsize, gap int) []imagejob.TileSpec {
	xs := axisStarts(width, subsize, gap)
	ys := axisStarts(height, subsize, gap)

	specs := make([]imagejob.TileSpec, 0, len(xs)*len(ys))
	for _, y0 := range ys {
		y1 := y0 + subsize
		if y1 > height {
			y1 = height
		}
		for _, x0 := range xs {
			x1 := x0 + subsize
			if x1 > width {
				x1 = width
			}
			specs = append(specs, imagejob.TileSpec{Y0: y0, Y1: y1, X0: x0, X1: x1})
		}
	}
	return specs
}

// Partition splits tiles into up to n consecutive batches, assigning
// ceil(len(tiles)/n) tiles per batch; the last non-empty batch may receive
// fewer, and trailing batches are empty once the tiles run out (9 tiles over
// 4 batches gives 3, 3, 3, 0; 1 tile over 4 gives 1, 0, 0, 0).
func Partition(tiles []imagejob.TileSpec, n int) [][]imagejob.TileSpec {
	batches := make([][]imagejob.TileSpec, n)
	if n <= 0 || len(tiles) == 0 {
		return batches
	}

	perBatch := (len(tiles) + n - 1) / n
	for i := 0; i < n; i++ {
		start := i * perBatch
		if start >= len(tiles) {
			batches[i] = nil
			continue
		}
		end := start + perBatch
		if end > len(tiles) {
			end = len(tiles)
		}
		batches[i] = tiles[start:end]
	}
	return batches
}
