package photom

import (
	"sort"

	"github.com/mhollis/fieldphot/pkg/fmath"
)

// A Source is a star-like feature detected in one frame: a pixel-space
// position (centroided, so fractional) and its background-subtracted
// peak value. Positions feed registration; nothing here knows about
// sky coordinates.
type Source struct {
	X, Y float64
	Peak float64
}

// A backgroundMesh holds a sigma-clipped estimate of sky level and
// noise for each BoxSize-sided cell of a frame.
type backgroundMesh struct {
	boxSize      int
	nx, ny       int
	level, noise []float64
}

func estimateBackground(g *fmath.FloatGrid, boxSize int) backgroundMesh {
	nx := (g.Dx() + boxSize - 1) / boxSize
	ny := (g.Dy() + boxSize - 1) / boxSize
	m := backgroundMesh{
		boxSize: boxSize,
		nx:      nx,
		ny:      ny,
		level:   make([]float64, nx*ny),
		noise:   make([]float64, nx*ny),
	}

	cell := make([]float64, 0, boxSize*boxSize)
	for cy := 0; cy < ny; cy++ {
		for cx := 0; cx < nx; cx++ {
			cell = cell[:0]
			for y := cy * boxSize; y < (cy+1)*boxSize && y < g.Dy(); y++ {
				for x := cx * boxSize; x < (cx+1)*boxSize && x < g.Dx(); x++ {
					cell = append(cell, g.Get(x, y))
				}
			}
			med, std := fmath.SigmaClip(cell, 3.0, 3)
			m.level[cy*nx+cx] = med
			m.noise[cy*nx+cx] = std
		}
	}
	return m
}

func (m *backgroundMesh)at(x, y int) (level, noise float64) {
	cx := x / m.boxSize
	cy := y / m.boxSize
	return m.level[cy*m.nx+cx], m.noise[cy*m.nx+cx]
}

// FindSources detects candidate stars: local maxima of the
// background-subtracted frame that clear sigma*noise for their cell.
// Results are ranked brightest-first, ties broken by (y,x) so a given
// frame always produces the same list, and capped at cfg.MaxSources.
// An empty result is legal - registration decides whether that's fatal.
func FindSources(g *fmath.FloatGrid, cfg Config) []Source {
	mesh := estimateBackground(g, cfg.BoxSize)
	srcs := []Source{}

	for y := 1; y < g.Dy()-1; y++ {
		for x := 1; x < g.Dx()-1; x++ {
			level, noise := mesh.at(x, y)
			v := g.Get(x, y) - level
			if v <= 0 || v < cfg.DetectSigma*noise {
				continue
			}
			if !isLocalMax(g, x, y) {
				continue
			}

			cx, cy := centroid3x3(g, x, y, level)
			srcs = append(srcs, Source{X: cx, Y: cy, Peak: v})
		}
	}

	sort.SliceStable(srcs, func(i, j int) bool {
		if srcs[i].Peak != srcs[j].Peak {
			return srcs[i].Peak > srcs[j].Peak
		}
		if srcs[i].Y != srcs[j].Y {
			return srcs[i].Y < srcs[j].Y
		}
		return srcs[i].X < srcs[j].X
	})

	if len(srcs) > cfg.MaxSources {
		srcs = srcs[:cfg.MaxSources]
	}
	return srcs
}

// isLocalMax: strictly greater than the neighbors still to be scanned,
// greater-or-equal to the ones already passed. A flat-topped
// (saturated) star then yields exactly one detection, at its first
// pixel in scan order.
func isLocalMax(g *fmath.FloatGrid, x, y int) bool {
	v := g.Get(x, y)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := g.Get(x+dx, y+dy)
			if dy < 0 || (dy == 0 && dx < 0) {
				if n >= v {
					return false
				}
			} else if n > v {
				return false
			}
		}
	}
	return true
}

// centroid3x3 refines a peak to sub-pixel position using the
// flux-weighted mean over the 3x3 neighborhood.
func centroid3x3(g *fmath.FloatGrid, x, y int, level float64) (float64, float64) {
	sumW, sumX, sumY := 0.0, 0.0, 0.0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			w := g.Get(x+dx, y+dy) - level
			if w <= 0 {
				continue
			}
			sumW += w
			sumX += w * float64(x+dx)
			sumY += w * float64(y+dy)
		}
	}
	if sumW == 0 {
		return float64(x), float64(y)
	}
	return sumX / sumW, sumY / sumW
}
