package fmath

import (
	"math"
	"testing"
)

func checkerGrid(w, h int) FloatGrid {
	g := NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, float64((x*7+y*13)%31))
		}
	}
	return g
}

func TestWarpIdentityPreservesInterior(t *testing.T) {
	g := checkerGrid(20, 16)
	out := g.Warp(Identity(), 20, 16, InterpBilinear, math.NaN())

	for y := 0; y < 15; y++ {
		for x := 0; x < 19; x++ {
			if math.Abs(out.Get(x, y)-g.Get(x, y)) > 1e-12 {
				t.Fatalf("identity warp changed (%d,%d): %f vs %f", x, y, out.Get(x, y), g.Get(x, y))
			}
		}
	}
}

func TestWarpTranslation(t *testing.T) {
	g := checkerGrid(20, 16)
	// Output pixel (x,y) pulls from source (x+3, y+2)
	inv := Identity().Translate(3, 2)
	out := g.Warp(inv, 20, 16, InterpNearest, math.NaN())

	if got, want := out.Get(5, 5), g.Get(8, 7); got != want {
		t.Errorf("translated warp: got %f want %f", got, want)
	}
}

func TestWarpOutOfBoundsFill(t *testing.T) {
	g := checkerGrid(10, 10)
	inv := Identity().Translate(100, 100)
	out := g.Warp(inv, 10, 10, InterpBilinear, math.NaN())

	if !math.IsNaN(out.Get(5, 5)) {
		t.Errorf("expected NaN fill for out-of-bounds source, got %f", out.Get(5, 5))
	}
}

func TestSigmaClipIgnoresOutliers(t *testing.T) {
	vals := []float64{}
	for i := 0; i < 100; i++ {
		vals = append(vals, 10.0+float64(i%5)*0.1)
	}
	vals = append(vals, 5000, 8000, 12000) // cosmic rays

	med, std := SigmaClip(vals, 3.0, 3)
	if med < 10.0 || med > 10.5 {
		t.Errorf("median %f polluted by outliers", med)
	}
	if std > 1.0 {
		t.Errorf("stddev %f polluted by outliers", std)
	}
}

func TestSigmaClipEmptyAndNaN(t *testing.T) {
	if med, std := SigmaClip(nil, 3.0, 3); med != 0 || std != 0 {
		t.Errorf("empty input: got %f, %f", med, std)
	}
	med, _ := SigmaClip([]float64{math.NaN(), 7.0, math.NaN()}, 3.0, 3)
	if med != 7.0 {
		t.Errorf("NaN-heavy input: got median %f, want 7", med)
	}
}
