//go:build !gocv

package segment

import (
	"fmt"
	"image"
	"math"

	"github.com/danmuck/defectctl/internal/protocol"
)

// Moore neighborhood, clockwise on screen (y grows downward), starting west.
var moore = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

func mooreDir(d image.Point) int {
	for i, v := range moore {
		if v == d {
			return i
		}
	}
	return 0
}

// maskPolygon traces the outer boundary of the mask's top-left region and
// simplifies it with Douglas-Peucker at epsilon.
func maskPolygon(m *mask, epsilon float64) (protocol.Polygon, error) {
	boundary := traceBoundary(m)
	if epsilon > 0 {
		boundary = simplifyClosed(boundary, epsilon)
	}
	if len(boundary) < 3 {
		return nil, fmt.Errorf("%w: boundary has %d points", ErrEmptyMask, len(boundary))
	}
	poly := make(protocol.Polygon, len(boundary))
	for i, p := range boundary {
		poly[i] = protocol.Point{X: float32(p.X), Y: float32(p.Y)}
	}
	return poly, nil
}

// traceBoundary walks the region's outer boundary clockwise with Moore
// neighbor tracing. It stops when the first boundary step repeats.
func traceBoundary(m *mask) []image.Point {
	start, ok := m.first()
	if !ok {
		return nil
	}
	points := []image.Point{start}
	cur, back := start, 0 // west of start is never set
	limit := 8*m.count + 16
	for i := 0; i < limit; i++ {
		next, nextBack, found := mooreStep(m, cur, back)
		if !found {
			break
		}
		if cur == start && len(points) > 1 && next == points[1] {
			break
		}
		cur, back = next, nextBack
		points = append(points, cur)
	}
	if n := len(points); n > 1 && points[n-1] == start {
		points = points[:n-1]
	}
	return points
}

// mooreStep scans clockwise from the backtrack direction and returns the
// next boundary pixel with its own backtrack direction.
func mooreStep(m *mask, cur image.Point, back int) (image.Point, int, bool) {
	for i := 1; i <= 8; i++ {
		d := (back + i) % 8
		n := cur.Add(moore[d])
		if !m.on(n) {
			continue
		}
		prev := cur.Add(moore[(d+7)%8])
		return n, mooreDir(prev.Sub(n)), true
	}
	return cur, back, false
}

// simplifyClosed runs Douglas-Peucker on a closed ring, anchored at the
// first point and the point farthest from it.
func simplifyClosed(pts []image.Point, epsilon float64) []image.Point {
	if len(pts) < 4 {
		return pts
	}
	far, best := 0, -1.0
	for i, p := range pts {
		d := dist(pts[0], p)
		if d > best {
			far, best = i, d
		}
	}
	ring := append(append([]image.Point{}, pts...), pts[0])
	a := douglasPeucker(ring[:far+1], epsilon)
	b := douglasPeucker(ring[far:], epsilon)
	out := append(a[:len(a)-1], b[:len(b)-1]...)
	return out
}

func douglasPeucker(pts []image.Point, epsilon float64) []image.Point {
	if len(pts) < 3 {
		return append([]image.Point{}, pts...)
	}
	first, last := pts[0], pts[len(pts)-1]
	idx, best := 0, -1.0
	for i := 1; i < len(pts)-1; i++ {
		d := segmentDist(pts[i], first, last)
		if d > best {
			idx, best = i, d
		}
	}
	if best <= epsilon {
		return []image.Point{first, last}
	}
	left := douglasPeucker(pts[:idx+1], epsilon)
	right := douglasPeucker(pts[idx:], epsilon)
	return append(left[:len(left)-1], right...)
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// segmentDist is the distance from p to the segment ab.
func segmentDist(p, a, b image.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	if dx == 0 && dy == 0 {
		return dist(p, a)
	}
	t := (float64(p.X-a.X)*dx + float64(p.Y-a.Y)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(float64(p.X)-float64(a.X)-t*dx, float64(p.Y)-float64(a.Y)-t*dy)
}
