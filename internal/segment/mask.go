package segment

import "image"

// mask is a binary raster selected by a prompt.
type mask struct {
	w, h  int
	bits  []bool
	count int
}

func newMask(w, h int) *mask {
	return &mask{w: w, h: h, bits: make([]bool, w*h)}
}

func (m *mask) set(i int) {
	if !m.bits[i] {
		m.bits[i] = true
		m.count++
	}
}

func (m *mask) on(p image.Point) bool {
	if p.X < 0 || p.Y < 0 || p.X >= m.w || p.Y >= m.h {
		return false
	}
	return m.bits[p.Y*m.w+p.X]
}

// first returns the top-most, then left-most set pixel.
func (m *mask) first() (image.Point, bool) {
	for i, b := range m.bits {
		if b {
			return image.Pt(i%m.w, i/m.w), true
		}
	}
	return image.Point{}, false
}

// largestComponent keeps only the biggest 4-connected region.
func (m *mask) largestComponent() *mask {
	labels := make([]int32, len(m.bits))
	var (
		bestLabel int32
		bestSize  int
		next      int32
	)
	for start, b := range m.bits {
		if !b || labels[start] != 0 {
			continue
		}
		next++
		size := 0
		stack := []int{start}
		labels[start] = next
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			x, y := i%m.w, i/m.w
			for _, d := range [4]image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := x+d.X, y+d.Y
				if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
					continue
				}
				j := ny*m.w + nx
				if m.bits[j] && labels[j] == 0 {
					labels[j] = next
					stack = append(stack, j)
				}
			}
		}
		if size > bestSize {
			bestSize = size
			bestLabel = next
		}
	}
	out := newMask(m.w, m.h)
	for i, l := range labels {
		if l != 0 && l == bestLabel {
			out.set(i)
		}
	}
	return out
}
