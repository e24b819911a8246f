//go:build gocv

package segment

import (
	"fmt"

	"github.com/danmuck/defectctl/internal/protocol"
	"gocv.io/x/gocv"
)

// maskPolygon extracts the largest external contour with OpenCV and
// approximates it at epsilon.
func maskPolygon(m *mask, epsilon float64) (protocol.Polygon, error) {
	buf := make([]byte, len(m.bits))
	for i, b := range m.bits {
		if b {
			buf[i] = 0xff
		}
	}
	mat, err := gocv.NewMatFromBytes(m.h, m.w, gocv.MatTypeCV8U, buf)
	if err != nil {
		return nil, fmt.Errorf("segment: mask mat: %w", err)
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return nil, ErrEmptyMask
	}
	best, bestArea := 0, -1.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			best, bestArea = i, area
		}
	}
	curve := contours.At(best)
	if epsilon > 0 {
		approx := gocv.ApproxPolyDP(curve, epsilon, true)
		defer approx.Close()
		curve = approx
	}
	pts := curve.ToPoints()
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: boundary has %d points", ErrEmptyMask, len(pts))
	}
	poly := make(protocol.Polygon, len(pts))
	for i, p := range pts {
		poly[i] = protocol.Point{X: float32(p.X), Y: float32(p.Y)}
	}
	return poly, nil
}
