package segment

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol"
)

// RegionGrow is a model-free backend. Encode smooths the luma plane; a click
// flood-fills pixels within tolerance of the seed, and a box splits its
// contents with an Otsu threshold.
type RegionGrow struct {
	tolerance float32
	epsilon   float64
}

func NewRegionGrow(tolerance, epsilon float64) *RegionGrow {
	if tolerance <= 0 {
		tolerance = DefaultConfig().Tolerance
	}
	if epsilon < 0 {
		epsilon = 0
	}
	return &RegionGrow{tolerance: float32(tolerance), epsilon: epsilon}
}

// lumaPlanes are the RegionGrow features.
type lumaPlanes struct {
	w, h int
	luma []float32
}

func (p *lumaPlanes) Size() (uint32, uint32) {
	return uint32(p.w), uint32(p.h)
}

func (p *lumaPlanes) at(x, y int) float32 {
	return p.luma[y*p.w+x]
}

func (r *RegionGrow) Encode(ctx context.Context, img protocol.ImageData) (Features, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	w, h := int(img.Width), int(img.Height)
	raw := make([]float32, w*h)
	for i := range raw {
		px := img.Pixels[i*3 : i*3+3]
		raw[i] = 0.299*float32(px[0]) + 0.587*float32(px[1]) + 0.114*float32(px[2])
	}

	// 3x3 box blur, clamped at the borders.
	out := &lumaPlanes{w: w, h: h, luma: make([]float32, w*h)}
	for y := 0; y < h; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for x := 0; x < w; x++ {
			var sum float32
			var n float32
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					sum += raw[ny*w+nx]
					n++
				}
			}
			out.luma[y*w+x] = sum / n
		}
	}
	logs.Debugf("segment.RegionGrow.Encode size=%dx%d", w, h)
	return out, nil
}

func (r *RegionGrow) Decode(ctx context.Context, f Features, p protocol.Prompt) (protocol.Polygon, error) {
	planes, ok := f.(*lumaPlanes)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrForeignFeatures, f)
	}
	var (
		m   *mask
		err error
	)
	switch prompt := p.(type) {
	case protocol.Click:
		m, err = r.click(ctx, planes, prompt)
	case protocol.BoundingBox:
		m, err = r.box(ctx, planes, prompt)
	default:
		return nil, fmt.Errorf("%w: unsupported prompt %T", ErrBadPrompt, p)
	}
	if err != nil {
		return nil, err
	}
	if m.count == 0 {
		return nil, ErrEmptyMask
	}
	return maskPolygon(m, r.epsilon)
}

func (r *RegionGrow) click(ctx context.Context, p *lumaPlanes, c protocol.Click) (*mask, error) {
	if !c.Positive {
		return nil, fmt.Errorf("%w: negative click without a positive region", ErrEmptyMask)
	}
	x, y, ok := pixelOf(p, c.Point)
	if !ok {
		return nil, fmt.Errorf("%w: click (%g,%g) on %dx%d", ErrBadPrompt, c.Point.X, c.Point.Y, p.w, p.h)
	}
	seed := p.at(x, y)
	m := newMask(p.w, p.h)
	queue := []int{y*p.w + x}
	m.set(y*p.w + x)
	for n := 0; len(queue) > 0; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		cx, cy := i%p.w, i/p.w
		for _, d := range [4]image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			nx, ny := cx+d.X, cy+d.Y
			if nx < 0 || ny < 0 || nx >= p.w || ny >= p.h {
				continue
			}
			j := ny*p.w + nx
			if m.bits[j] {
				continue
			}
			if abs32(p.luma[j]-seed) > r.tolerance {
				continue
			}
			m.set(j)
			queue = append(queue, j)
		}
	}
	return m, nil
}

func (r *RegionGrow) box(ctx context.Context, p *lumaPlanes, b protocol.BoundingBox) (*mask, error) {
	if !finite(b.Min, b.Max) {
		return nil, fmt.Errorf("%w: box (%g,%g)-(%g,%g) is not finite", ErrBadPrompt, b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	}
	x0 := int(math.Floor(clampAxis(float64(min(b.Min.X, b.Max.X)), p.w)))
	y0 := int(math.Floor(clampAxis(float64(min(b.Min.Y, b.Max.Y)), p.h)))
	x1 := int(math.Ceil(clampAxis(float64(max(b.Min.X, b.Max.X)), p.w)))
	y1 := int(math.Ceil(clampAxis(float64(max(b.Min.Y, b.Max.Y)), p.h)))
	rect := image.Rect(x0, y0, x1+1, y1+1).Intersect(image.Rect(0, 0, p.w, p.h))
	if rect.Empty() {
		return nil, fmt.Errorf("%w: box %v on %dx%d", ErrBadPrompt, rect, p.w, p.h)
	}

	var hist [256]int
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			hist[level(p.at(x, y))]++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := otsu(hist[:])

	// The region touching the box border least is the object.
	var borderHi, borderLo int
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if x != rect.Min.X && x != rect.Max.X-1 && y != rect.Min.Y && y != rect.Max.Y-1 {
				continue
			}
			if level(p.at(x, y)) > t {
				borderHi++
			} else {
				borderLo++
			}
		}
	}
	wantHi := borderHi < borderLo

	m := newMask(p.w, p.h)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if (level(p.at(x, y)) > t) == wantHi {
				m.set(y*p.w + x)
			}
		}
	}
	return m.largestComponent(), nil
}

// otsu returns the threshold maximizing between-class variance; values
// above it form the upper class.
func otsu(hist []int) int {
	var total, sum float64
	for i, n := range hist {
		total += float64(n)
		sum += float64(i) * float64(n)
	}
	var (
		wLo, sumLo float64
		best       float64
		threshold  int
	)
	for t, n := range hist {
		wLo += float64(n)
		if wLo == 0 {
			continue
		}
		wHi := total - wLo
		if wHi == 0 {
			break
		}
		sumLo += float64(t) * float64(n)
		mLo := sumLo / wLo
		mHi := (sum - sumLo) / wHi
		between := wLo * wHi * (mLo - mHi) * (mLo - mHi)
		if between > best {
			best = between
			threshold = t
		}
	}
	return threshold
}

// pixelOf maps pt to a pixel. Comparisons run on floats so NaN, Inf and
// huge values are rejected before any int conversion.
func pixelOf(p *lumaPlanes, pt protocol.Point) (int, int, bool) {
	if !(pt.X >= 0 && pt.X < float32(p.w)) || !(pt.Y >= 0 && pt.Y < float32(p.h)) {
		return 0, 0, false
	}
	return int(pt.X), int(pt.Y), true
}

func finite(pts ...protocol.Point) bool {
	for _, pt := range pts {
		x, y := float64(pt.X), float64(pt.Y)
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			return false
		}
	}
	return true
}

// clampAxis limits v to [-1, n+1] so the int conversion cannot overflow.
func clampAxis(v float64, n int) float64 {
	return math.Max(-1, math.Min(v, float64(n)+1))
}

func level(v float32) int {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return int(v)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
