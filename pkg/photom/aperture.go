package photom

import (
	"math"
	"time"

	"github.com/mhollis/fieldphot/pkg/fits"
	"github.com/mhollis/fieldphot/pkg/fmath"
)

// An Aperture is a fixed circular region on the aligned pixel grid.
// The analyst places it once; it never re-centers per frame, so any
// residual alignment error shows up honestly in the light curve
// instead of being chased by the photometry.
type Aperture struct {
	Name string
	X, Y float64
	R    float64
}

// A FluxSample is one frame's photometry: the frame timestamp plus
// one summed flux per aperture, in configured aperture order.
type FluxSample struct {
	Time     time.Time
	Flux     []float64
	Warnings []OOBWarning
}

// MeasureFrame sums pixel flux inside each aperture. Pixels cut by
// the circle boundary contribute the exact fraction of their area the
// circle covers - a binary inside/outside test biases small apertures
// by a good few percent. Off-grid or NaN pixels contribute nothing
// and raise an OOBWarning on the sample.
func MeasureFrame(f fits.Frame, aps []Aperture) FluxSample {
	sample := FluxSample{
		Time: f.Time,
		Flux: make([]float64, len(aps)),
	}

	for i, ap := range aps {
		flux, missing := sumAperture(&f.Grid, ap)
		sample.Flux[i] = flux
		if missing > 0 {
			sample.Warnings = append(sample.Warnings, OOBWarning{Aperture: ap.Name, Missing: missing})
		}
	}
	return sample
}

func sumAperture(g *fmath.FloatGrid, ap Aperture) (flux, missing float64) {
	x0 := int(math.Floor(ap.X - ap.R))
	x1 := int(math.Ceil(ap.X + ap.R))
	y0 := int(math.Floor(ap.Y - ap.R))
	y1 := int(math.Ceil(ap.Y + ap.R))

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			// Pixel (x,y) covers the square [x-.5,x+.5] x [y-.5,y+.5],
			// expressed in circle-centered coordinates here.
			w := circleSquareOverlap(
				float64(x)-ap.X-0.5, float64(y)-ap.Y-0.5,
				float64(x)-ap.X+0.5, float64(y)-ap.Y+0.5, ap.R)
			if w <= 0 {
				continue
			}

			if !g.In(x, y) || math.IsNaN(g.Get(x, y)) {
				missing += w
				continue
			}
			flux += w * g.Get(x, y)
		}
	}
	return flux, missing
}

// circleSquareOverlap is the exact intersection area of the circle
// x^2+y^2=r^2 with the rectangle [xmin,xmax]x[ymin,ymax]. Symmetry
// reductions fold everything into a first-quadrant core. Same
// construction as photutils' circular overlap kernel.
func circleSquareOverlap(xmin, ymin, xmax, ymax, r float64) float64 {
	switch {
	case 0 <= xmin:
		switch {
		case 0 <= ymin:
			return overlapCore(xmin, ymin, xmax, ymax, r)
		case 0 >= ymax:
			return overlapCore(-ymax, xmin, -ymin, xmax, r)
		default:
			return circleSquareOverlap(xmin, ymin, xmax, 0, r) +
				circleSquareOverlap(xmin, 0, xmax, ymax, r)
		}
	case 0 >= xmax:
		switch {
		case 0 <= ymin:
			return overlapCore(-xmax, ymin, -xmin, ymax, r)
		case 0 >= ymax:
			return overlapCore(-xmax, -ymax, -xmin, -ymin, r)
		default:
			return circleSquareOverlap(xmin, ymin, xmax, 0, r) +
				circleSquareOverlap(xmin, 0, xmax, ymax, r)
		}
	default:
		switch {
		case 0 <= ymin, 0 >= ymax:
			return circleSquareOverlap(xmin, ymin, 0, ymax, r) +
				circleSquareOverlap(0, ymin, xmax, ymax, r)
		default:
			return circleSquareOverlap(xmin, ymin, 0, 0, r) +
				circleSquareOverlap(0, ymin, xmax, 0, r) +
				circleSquareOverlap(xmin, 0, 0, ymax, r) +
				circleSquareOverlap(0, 0, xmax, ymax, r)
		}
	}
}

// overlapCore handles a rectangle entirely inside the first quadrant,
// 0 <= xmin <= xmax, 0 <= ymin <= ymax.
func overlapCore(xmin, ymin, xmax, ymax, r float64) float64 {
	if xmin*xmin+ymin*ymin > r*r {
		return 0
	}
	if xmax*xmax+ymax*ymax < r*r {
		return (xmax - xmin) * (ymax - ymin)
	}

	d1 := math.Hypot(xmax, ymin)
	d2 := math.Hypot(xmin, ymax)
	switch {
	case d1 < r && d2 < r:
		x1, y1 := math.Sqrt(r*r-ymax*ymax), ymax
		x2, y2 := xmax, math.Sqrt(r*r-xmax*xmax)
		return (xmax-xmin)*(ymax-ymin) -
			areaTriangle(x1, y1, x2, y2, xmax, ymax) +
			areaArc(x1, y1, x2, y2, r)
	case d1 < r:
		x1, y1 := xmin, math.Sqrt(r*r-xmin*xmin)
		x2, y2 := xmax, math.Sqrt(r*r-xmax*xmax)
		return areaArc(x1, y1, x2, y2, r) +
			areaTriangle(x1, y1, x1, ymin, xmax, ymin) +
			areaTriangle(x1, y1, x2, ymin, x2, y2)
	case d2 < r:
		x1, y1 := math.Sqrt(r*r-ymin*ymin), ymin
		x2, y2 := math.Sqrt(r*r-ymax*ymax), ymax
		return areaArc(x1, y1, x2, y2, r) +
			areaTriangle(x1, y1, xmin, ymin, xmin, ymax) +
			areaTriangle(x1, y1, xmin, ymax, x2, y2)
	default:
		x1, y1 := math.Sqrt(r*r-ymin*ymin), ymin
		x2, y2 := xmin, math.Sqrt(r*r-xmin*xmin)
		return areaArc(x1, y1, x2, y2, r) +
			areaTriangle(x1, y1, x2, y2, xmin, ymin)
	}
}

// areaArc: area between the chord (x1,y1)-(x2,y2) and its arc.
func areaArc(x1, y1, x2, y2, r float64) float64 {
	d := math.Hypot(x2-x1, y2-y1)
	theta := 2 * math.Asin(0.5*d/r)
	return 0.5 * r * r * (theta - math.Sin(theta))
}

func areaTriangle(x1, y1, x2, y2, x3, y3 float64) float64 {
	return 0.5 * math.Abs(x1*(y2-y3) + x2*(y3-y1) + x3*(y1-y2))
}
