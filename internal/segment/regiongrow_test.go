package segment

import (
	"context"
	"math"
	"testing"

	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/danmuck/defectctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// squareImage is a dark w x w field with a bright square covering [lo, hi].
func squareImage(w, lo, hi int) protocol.ImageData {
	px := make([]byte, w*w*3)
	for y := 0; y < w; y++ {
		for x := 0; x < w; x++ {
			v := byte(20)
			if x >= lo && x <= hi && y >= lo && y <= hi {
				v = 200
			}
			i := (y*w + x) * 3
			px[i], px[i+1], px[i+2] = v, v, v
		}
	}
	return protocol.ImageData{Width: uint32(w), Height: uint32(w), Pixels: px}
}

func assertWithin(t *testing.T, poly protocol.Polygon, lo, hi float32) {
	t.Helper()
	require.GreaterOrEqual(t, len(poly), 4)
	for _, p := range poly {
		assert.GreaterOrEqual(t, p.X, lo-1)
		assert.LessOrEqual(t, p.X, hi+1)
		assert.GreaterOrEqual(t, p.Y, lo-1)
		assert.LessOrEqual(t, p.Y, hi+1)
	}
}

func TestRegionGrowClickSelectsRegion(t *testing.T) {
	testlog.Start(t)
	rg := NewRegionGrow(24, 1.5)
	f, err := rg.Encode(context.Background(), squareImage(40, 10, 29))
	require.NoError(t, err)
	w, h := f.Size()
	assert.Equal(t, uint32(40), w)
	assert.Equal(t, uint32(40), h)

	poly, err := rg.Decode(context.Background(), f, protocol.Click{Point: protocol.Point{X: 15, Y: 15}, Positive: true})
	require.NoError(t, err)
	assertWithin(t, poly, 10, 29)
}

func TestRegionGrowBoxSelectsObject(t *testing.T) {
	testlog.Start(t)
	rg := NewRegionGrow(24, 1.5)
	f, err := rg.Encode(context.Background(), squareImage(40, 10, 29))
	require.NoError(t, err)

	poly, err := rg.Decode(context.Background(), f, protocol.BoundingBox{
		Min: protocol.Point{X: 35, Y: 35},
		Max: protocol.Point{X: 4, Y: 4},
	})
	require.NoError(t, err)
	assertWithin(t, poly, 10, 29)
}

func TestRegionGrowRejectsBadPrompts(t *testing.T) {
	testlog.Start(t)
	rg := NewRegionGrow(24, 1.5)
	f, err := rg.Encode(context.Background(), squareImage(40, 10, 29))
	require.NoError(t, err)

	_, err = rg.Decode(context.Background(), f, protocol.Click{Point: protocol.Point{X: 15, Y: 15}})
	assert.ErrorIs(t, err, ErrEmptyMask)

	_, err = rg.Decode(context.Background(), f, protocol.Click{Point: protocol.Point{X: 400, Y: 1}, Positive: true})
	assert.ErrorIs(t, err, ErrBadPrompt)

	_, err = rg.Decode(context.Background(), f, protocol.Click{Point: protocol.Point{X: -1, Y: 1}, Positive: true})
	assert.ErrorIs(t, err, ErrBadPrompt)

	_, err = rg.Decode(context.Background(), f, protocol.BoundingBox{
		Min: protocol.Point{X: 100, Y: 100},
		Max: protocol.Point{X: 120, Y: 120},
	})
	assert.ErrorIs(t, err, ErrBadPrompt)

	inf := float32(math.Inf(1))
	nan := float32(math.NaN())
	for _, pt := range []protocol.Point{{X: inf, Y: 1}, {X: 1, Y: inf}, {X: 1e19, Y: 1}, {X: 1, Y: -1e19}, {X: nan, Y: 1}} {
		_, err = rg.Decode(context.Background(), f, protocol.Click{Point: pt, Positive: true})
		assert.ErrorIs(t, err, ErrBadPrompt, "click %v", pt)
	}
	for _, b := range []protocol.BoundingBox{
		{Min: protocol.Point{X: 0, Y: 0}, Max: protocol.Point{X: inf, Y: 10}},
		{Min: protocol.Point{X: nan, Y: 0}, Max: protocol.Point{X: 10, Y: 10}},
		{Min: protocol.Point{X: 1e19, Y: 1e19}, Max: protocol.Point{X: 2e19, Y: 2e19}},
	} {
		_, err = rg.Decode(context.Background(), f, b)
		assert.ErrorIs(t, err, ErrBadPrompt, "box %v", b)
	}

	// A huge box still clamps to the image.
	poly, err := rg.Decode(context.Background(), f, protocol.BoundingBox{
		Min: protocol.Point{X: -1e19, Y: -1e19},
		Max: protocol.Point{X: 1e19, Y: 1e19},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(poly), 3)

	_, err = rg.Decode(context.Background(), fakeFeatures{}, protocol.Click{Positive: true})
	assert.ErrorIs(t, err, ErrForeignFeatures)
}

func TestRegionGrowUniformBoxIsEmpty(t *testing.T) {
	testlog.Start(t)
	rg := NewRegionGrow(24, 1.5)
	f, err := rg.Encode(context.Background(), squareImage(20, 100, 100))
	require.NoError(t, err)
	_, err = rg.Decode(context.Background(), f, protocol.BoundingBox{
		Min: protocol.Point{X: 2, Y: 2},
		Max: protocol.Point{X: 12, Y: 12},
	})
	assert.ErrorIs(t, err, ErrEmptyMask)
}

func TestRegionGrowDecodeLeavesFeaturesUntouched(t *testing.T) {
	testlog.Start(t)
	rg := NewRegionGrow(24, 1.5)
	f, err := rg.Encode(context.Background(), squareImage(40, 10, 29))
	require.NoError(t, err)
	before := append([]float32(nil), f.(*lumaPlanes).luma...)

	for i := 0; i < 3; i++ {
		_, err := rg.Decode(context.Background(), f, protocol.Click{Point: protocol.Point{X: 20, Y: 20}, Positive: true})
		require.NoError(t, err)
	}
	assert.Equal(t, before, f.(*lumaPlanes).luma)
}

func TestRegionGrowEncodeRejectsBadImage(t *testing.T) {
	testlog.Start(t)
	_, err := NewRegionGrow(24, 1.5).Encode(context.Background(), protocol.ImageData{Width: 3, Height: 3, Pixels: []byte{1}})
	assert.ErrorIs(t, err, protocol.ErrImageSize)
}

func TestOtsuSplitsBimodalHistogram(t *testing.T) {
	testlog.Start(t)
	hist := make([]int, 256)
	hist[20] = 100
	hist[200] = 50
	th := otsu(hist)
	assert.GreaterOrEqual(t, th, 20)
	assert.Less(t, th, 200)
}

func TestLargestComponentKeepsBiggestRegion(t *testing.T) {
	testlog.Start(t)
	m := newMask(10, 10)
	m.set(0)
	for y := 4; y < 8; y++ {
		for x := 4; x < 8; x++ {
			m.set(y*10 + x)
		}
	}
	out := m.largestComponent()
	assert.Equal(t, 16, out.count)
	assert.False(t, out.bits[0])
}
