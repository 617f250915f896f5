package fmath

import(
	"fmt"
	"math"
)

// A FloatGrid is a grid of floats, with some operations. Pixel data
// lives here as float64 so nothing downstream has to care what bit
// depth the camera produced.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

func (g1 *FloatGrid)NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Dy() int                 { return len(fg.values) / fg.stride }
func (fg *FloatGrid)In(x, y int) bool        { return x >= 0 && y >= 0 && x < fg.Dx() && y < fg.Dy() }

func (g1 *FloatGrid)Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

func (fg *FloatGrid)Fill(v float64) {
	for i := range fg.values {
		fg.values[i] = v
	}
}

// Values exposes the backing slice, row-major. Shared, not copied.
func (fg *FloatGrid)Values() []float64 { return fg.values }

type Interp int

const (
	InterpBilinear Interp = iota
	InterpNearest
)

// Warp resamples the grid through `inv`, which maps output pixel
// coords back into this grid's coords. Output pixels whose source
// lands outside the grid get `fill` (typically NaN, so photometry can
// tell resampled-garbage from real sky).
func (fg *FloatGrid)Warp(inv Aff3, w, h int, ip Interp, fill float64) FloatGrid {
	out := NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := inv.Apply(float64(x), float64(y))
			out.Set(x, y, fg.sample(sx, sy, ip, fill))
		}
	}
	return out
}

func (fg *FloatGrid)sample(sx, sy float64, ip Interp, fill float64) float64 {
	if ip == InterpNearest {
		x := int(math.Round(sx))
		y := int(math.Round(sy))
		if !fg.In(x, y) {
			return fill
		}
		return fg.Get(x, y)
	}

	x0 := int(math.Floor(sx))
	y0 := int(math.Floor(sy))
	if x0 < 0 || y0 < 0 || x0+1 >= fg.Dx() || y0+1 >= fg.Dy() {
		return fill
	}
	fx := sx - float64(x0)
	fy := sy - float64(y0)

	v00 := fg.Get(x0,   y0)
	v10 := fg.Get(x0+1, y0)
	v01 := fg.Get(x0,   y0+1)
	v11 := fg.Get(x0+1, y0+1)

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy
}

func (fg *FloatGrid)Stats() string {
	min := math.MaxFloat64
	max := -1.0 * min

	for i := 0; i < len(fg.values); i++ {
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}]", fg.Dx(), fg.Dy(), min, max)
}
