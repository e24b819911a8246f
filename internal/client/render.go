package client

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/danmuck/defectctl/internal/faces"
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/disintegration/imaging"
)

// Texture is an uploaded face image.
type Texture interface {
	Size() (width, height int)
}

// Renderer turns decoded face images into textures.
type Renderer interface {
	Upload(img protocol.ImageData) (Texture, error)
}

// ImageTexture keeps the face as an in-memory NRGBA image.
type ImageTexture struct {
	Image *image.NRGBA
}

func (t *ImageTexture) Size() (int, int) {
	b := t.Image.Bounds()
	return b.Dx(), b.Dy()
}

// ImageRenderer uploads faces into ImageTextures.
type ImageRenderer struct{}

func (ImageRenderer) Upload(img protocol.ImageData) (Texture, error) {
	nrgba, err := faces.ToNRGBA(img)
	if err != nil {
		return nil, err
	}
	return &ImageTexture{Image: nrgba}, nil
}

var outline = color.NRGBA{R: 255, G: 40, B: 40, A: 255}

// Overlay draws every defect outline onto a copy of tex. When maxSide is
// positive the result is scaled down to fit within maxSide on both axes.
func Overlay(tex Texture, ann protocol.AnnotationData, maxSide int) (*image.NRGBA, error) {
	it, ok := tex.(*ImageTexture)
	if !ok || it.Image == nil {
		return nil, fmt.Errorf("client: overlay needs an image texture, got %T", tex)
	}
	out := imaging.Clone(it.Image)
	for _, d := range ann.Polygons {
		n := len(d.Polygon)
		for i := range n {
			a, b := d.Polygon[i], d.Polygon[(i+1)%n]
			x0, y0, x1, y1, ok := clipSegment(out.Rect, a, b)
			if ok {
				drawLine(out, x0, y0, x1, y1)
			}
		}
	}
	if maxSide > 0 {
		out = imaging.Fit(out, maxSide, maxSide, imaging.Lanczos)
	}
	return out, nil
}

// SaveOverlay writes Overlay's result to path. The format follows the
// extension.
func SaveOverlay(path string, tex Texture, ann protocol.AnnotationData, maxSide int) error {
	img, err := Overlay(tex, ann, maxSide)
	if err != nil {
		return err
	}
	return imaging.Save(img, path)
}

// clipSegment clips a-b to r with Liang-Barsky and returns pixel endpoints
// inside r. Segments with non-finite ends or none of their length inside r
// are rejected.
func clipSegment(r image.Rectangle, a, b protocol.Point) (int, int, int, int, bool) {
	ax, ay, bx, by := float64(a.X), float64(a.Y), float64(b.X), float64(b.Y)
	for _, v := range [4]float64{ax, ay, bx, by} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, 0, false
		}
	}
	if r.Empty() {
		return 0, 0, 0, 0, false
	}
	minX, minY := float64(r.Min.X), float64(r.Min.Y)
	maxX, maxY := float64(r.Max.X-1), float64(r.Max.Y-1)
	dx, dy := bx-ax, by-ay
	t0, t1 := 0.0, 1.0
	for _, edge := range [4][2]float64{
		{-dx, ax - minX},
		{dx, maxX - ax},
		{-dy, ay - minY},
		{dy, maxY - ay},
	} {
		p, q := edge[0], edge[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = max(t0, t)
		} else {
			t1 = min(t1, t)
		}
		if t0 > t1 {
			return 0, 0, 0, 0, false
		}
	}
	px := func(v, lo, hi float64) int { return int(math.Round(math.Max(lo, math.Min(v, hi)))) }
	return px(ax+t0*dx, minX, maxX), px(ay+t0*dy, minY, maxY),
		px(ax+t1*dx, minX, maxX), px(ay+t1*dy, minY, maxY), true
}

func drawLine(img *image.NRGBA, x0, y0, x1, y1 int) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if (image.Point{X: x0, Y: y0}).In(img.Rect) {
			img.SetNRGBA(x0, y0, outline)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
