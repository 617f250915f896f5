package photom

import (
	"math"
	"testing"
	"time"

	"github.com/mhollis/fieldphot/pkg/fits"
	"github.com/mhollis/fieldphot/pkg/fmath"
)

func onesGrid(w, h int) fmath.FloatGrid {
	g := fmath.NewFloatGrid(w, h)
	g.Fill(1.0)
	return g
}

func TestApertureAreaOnUniformImage(t *testing.T) {
	g := onesGrid(40, 40)
	ap := Aperture{Name: "a", X: 20.3, Y: 19.7, R: 5}

	flux, missing := sumAperture(&g, ap)
	if missing != 0 {
		t.Errorf("interior aperture reported %f missing area", missing)
	}
	want := math.Pi * ap.R * ap.R
	if math.Abs(flux-want) > 1e-6 {
		t.Errorf("uniform flux %f, want %f", flux, want)
	}
}

func TestFluxMonotonicWithRadius(t *testing.T) {
	g := synthGrid(100, 100, testStars())

	prev := -1.0
	for r := 1.0; r <= 10; r += 0.5 {
		flux, _ := sumAperture(&g, Aperture{Name: "a", X: 30, Y: 30, R: r})
		if flux < prev {
			t.Fatalf("flux decreased growing radius to %f: %f < %f", r, flux, prev)
		}
		prev = flux
	}
}

// The exact fractional sum must land between the two naive binary
// tests: pixel-center-inside (undercounts) and pixel-touches-circle
// (overcounts).
func TestFractionalCoverageIsBracketed(t *testing.T) {
	g := onesGrid(40, 40)
	ap := Aperture{Name: "a", X: 20.25, Y: 20.5, R: 4.3}

	inner, outer := 0.0, 0.0
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			d := math.Hypot(float64(x)-ap.X, float64(y)-ap.Y)
			if d <= ap.R {
				inner += g.Get(x, y)
			}
			if d <= ap.R+math.Sqrt2/2 {
				outer += g.Get(x, y)
			}
		}
	}

	exact, _ := sumAperture(&g, ap)
	if exact < inner || exact > outer {
		t.Errorf("exact sum %f outside bracket [%f, %f]", exact, inner, outer)
	}
}

func TestEdgeApertureWarnsAndKeepsInBoundsFlux(t *testing.T) {
	g := onesGrid(20, 20)
	f := fits.Frame{Time: t0, Grid: g}
	aps := []Aperture{{Name: "edge", X: 2, Y: 10, R: 5}}

	sample := MeasureFrame(f, aps)
	full := math.Pi * 25.0

	if sample.Flux[0] >= full {
		t.Errorf("edge aperture flux %f not reduced from %f", sample.Flux[0], full)
	}
	if len(sample.Warnings) != 1 {
		t.Fatalf("expected 1 out-of-bounds warning, got %d", len(sample.Warnings))
	}
	if sample.Warnings[0].Aperture != "edge" {
		t.Errorf("warning names aperture '%s'", sample.Warnings[0].Aperture)
	}

	// In-bounds flux plus missing area should cover the whole circle
	if got := sample.Flux[0] + sample.Warnings[0].Missing; math.Abs(got-full) > 1e-6 {
		t.Errorf("flux %f + missing %f != circle area %f", sample.Flux[0], sample.Warnings[0].Missing, full)
	}
}

func TestNaNPixelsAreFlaggedNotSummed(t *testing.T) {
	g := onesGrid(40, 40)
	g.Set(20, 20, math.NaN())
	f := fits.Frame{Time: t0, Grid: g}

	sample := MeasureFrame(f, []Aperture{{Name: "a", X: 20, Y: 20, R: 3}})
	if math.IsNaN(sample.Flux[0]) {
		t.Fatalf("NaN leaked into the flux sum")
	}
	if len(sample.Warnings) != 1 {
		t.Errorf("NaN under aperture not flagged")
	}
	want := math.Pi*9.0 - 1.0 // circle area minus the dead pixel
	if math.Abs(sample.Flux[0]-want) > 1e-6 {
		t.Errorf("flux %f, want %f", sample.Flux[0], want)
	}
}

func TestMeasureFrameKeepsApertureOrder(t *testing.T) {
	g := synthGrid(100, 100, testStars())
	f := fits.Frame{Time: t0.Add(time.Hour), Grid: g}
	aps := []Aperture{
		{Name: "bright", X: 30, Y: 30, R: 6},
		{Name: "faint", X: 26, Y: 68, R: 6},
	}

	sample := MeasureFrame(f, aps)
	if len(sample.Flux) != 2 {
		t.Fatalf("got %d fluxes for 2 apertures", len(sample.Flux))
	}
	if sample.Flux[0] <= sample.Flux[1] {
		t.Errorf("aperture order scrambled: bright %f <= faint %f", sample.Flux[0], sample.Flux[1])
	}
	if !sample.Time.Equal(f.Time) {
		t.Errorf("sample timestamp %s != frame %s", sample.Time, f.Time)
	}
}
