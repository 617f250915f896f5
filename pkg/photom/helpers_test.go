package photom

import (
	"math"
	"time"

	"github.com/mhollis/fieldphot/pkg/fits"
	"github.com/mhollis/fieldphot/pkg/fmath"
)

// A synthStar is an injected gaussian point source: position, amplitude.
type synthStar struct {
	x, y, amp float64
}

const synthSigma = 1.6

// synthGrid renders stars onto a flat zero background.
func synthGrid(w, h int, stars []synthStar) fmath.FloatGrid {
	g := fmath.NewFloatGrid(w, h)
	for _, s := range stars {
		x0, x1 := int(s.x)-8, int(s.x)+8
		y0, y1 := int(s.y)-8, int(s.y)+8
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				if !g.In(x, y) {
					continue
				}
				dx := float64(x) - s.x
				dy := float64(y) - s.y
				v := g.Get(x, y) + s.amp*math.Exp(-(dx*dx+dy*dy)/(2*synthSigma*synthSigma))
				g.Set(x, y, v)
			}
		}
	}
	return g
}

func synthFrame(name string, when time.Time, w, h int, stars []synthStar) fits.Frame {
	return fits.Frame{
		Path:   name,
		Time:   when,
		Header: fits.Header{"DATE-OBS": when.Format("2006-01-02T15:04:05")},
		Grid:   synthGrid(w, h, stars),
	}
}

// rotateStars spins star positions around (cx,cy) by thetaDeg,
// leaving brightness alone - same field, different field rotation.
func rotateStars(stars []synthStar, thetaDeg, cx, cy float64) []synthStar {
	m := fmath.RotateAbout(thetaDeg, cx, cy)
	out := make([]synthStar, len(stars))
	for i, s := range stars {
		x, y := m.Apply(s.x, s.y)
		out[i] = synthStar{x: x, y: y, amp: s.amp}
	}
	return out
}

// A deliberately asymmetric pattern, so no two triangles look alike.
func testStars() []synthStar {
	return []synthStar{
		{x: 30.0, y: 30.0, amp: 1000},
		{x: 71.0, y: 26.0, amp: 800},
		{x: 26.0, y: 68.0, amp: 600},
		{x: 64.0, y: 61.0, amp: 900},
	}
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.BoxSize = 25
	cfg.DetectSigma = 5.0
	cfg.Workers = 2
	return cfg
}
