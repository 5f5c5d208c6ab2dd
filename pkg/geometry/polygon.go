// Package geometry implements the two-level NMS that reconciles overlapping
// rotated-box detections at tile boundaries. The rotated-polygon IoU
// primitive itself is an external collaborator specified only at its
// interface — here that interface is IoUFunc. DefaultIoU is a reference
// Sutherland-Hodgman convex-clip implementation used by tests and
// single-binary mode; a production deployment may inject a faster or
// GPU-backed IoU instead.
package geometry

import "math"

// Point is a 2D vertex.
type Point struct{ X, Y float64 }

// Quad is a rotated box's four vertices in order, as stored in the first 8 slots
// of a detection row (x0,y0,x1,y1,x2,y2,x3,y3).
type Quad [4]Point

func quadFromRow(row [9]float64) Quad {
	return Quad{
		{row[0], row[1]},
		{row[2], row[3]},
		{row[4], row[5]},
		{row[6], row[7]},
	}
}

// area returns the polygon's signed area via the shoelace formula; callers use
// math.Abs on the result.
func (q Quad) area() float64 {
	return polygonArea(q[:])
}

func polygonArea(pts []Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return sum / 2
}

// clipConvex intersects two convex polygons with Sutherland-Hodgman clipping and
// returns the (possibly empty) intersection polygon's vertices in order.
func clipConvex(subject, clip []Point) []Point {
	if len(clip) < 3 {
		return nil
	}
	// Ensure the clip polygon is wound counter-clockwise, which the clipping
	// inside-test below assumes.
	if polygonArea(clip) < 0 {
		clip = reversed(clip)
	}

	output := append([]Point(nil), subject...)
	for i := 0; i < len(clip) && len(output) > 0; i++ {
		a := clip[i]
		b := clip[(i+1)%len(clip)]
		input := output
		output = nil
		for j := 0; j < len(input); j++ {
			cur := input[j]
			prev := input[(j-1+len(input))%len(input)]
			curInside := isLeft(a, b, cur) >= 0
			prevInside := isLeft(a, b, prev) >= 0
			if curInside {
				if !prevInside {
					output = append(output, segmentIntersect(prev, cur, a, b))
				}
				output = append(output, cur)
			} else if prevInside {
				output = append(output, segmentIntersect(prev, cur, a, b))
			}
		}
	}
	return output
}

func reversed(pts []Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

func isLeft(a, b, p Point) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

func segmentIntersect(p1, p2, a, b Point) Point {
	d1x, d1y := p2.X-p1.X, p2.Y-p1.Y
	d2x, d2y := b.X-a.X, b.Y-a.Y
	denom := d1x*d2y - d1y*d2x
	if math.Abs(denom) < 1e-12 {
		return p2
	}
	t := ((a.X-p1.X)*d2y - (a.Y-p1.Y)*d2x) / denom
	return Point{p1.X + t*d1x, p1.Y + t*d1y}
}

// IoUFunc computes the intersection-over-union of two rotated boxes given as
// 8-coordinate polygon vertex lists.
type IoUFunc func(a, b [8]float64) float64

// DefaultIoU clips the two convex quads against each other and divides the
// intersection area by the union area. Degenerate (zero-area) inputs yield 0.
func DefaultIoU(a, b [8]float64) float64 {
	var row9a, row9b [9]float64
	copy(row9a[:8], a[:])
	copy(row9b[:8], b[:])
	qa := quadFromRow(row9a)
	qb := quadFromRow(row9b)

	areaA := math.Abs(qa.area())
	areaB := math.Abs(qb.area())
	if areaA == 0 || areaB == 0 {
		return 0
	}

	inter := clipConvex(qa[:], qb[:])
	interArea := math.Abs(polygonArea(inter))

	union := areaA + areaB - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
