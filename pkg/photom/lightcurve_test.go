package photom

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhollis/fieldphot/pkg/fits"
)

func curveConfig() Config {
	cfg := testConfig()
	cfg.Apertures = []Aperture{
		{Name: "target", X: 30, Y: 30, R: 6},
		{Name: "comp1", X: 64, Y: 61, R: 6},
	}
	cfg.TargetAperture = "target"
	cfg.CompareAperture = "comp1"
	return cfg
}

// samplesWithRatios fabricates one sample per ratio, comparison flux
// pinned at 100 so the target flux is ratio*100.
func samplesWithRatios(ratios []float64, cadence time.Duration) []FluxSample {
	t0 := time.Date(2024, 3, 14, 2, 0, 0, 0, time.UTC)
	out := make([]FluxSample, len(ratios))
	for i, r := range ratios {
		out[i] = FluxSample{
			Time: t0.Add(time.Duration(i) * cadence),
			Flux: []float64{r * 100.0, 100.0},
		}
	}
	return out
}

func TestNewLightCurveRatios(t *testing.T) {
	cfg := curveConfig()
	samples := samplesWithRatios([]float64{1.0, 0.5, 2.0}, 10*time.Second)

	lc, err := NewLightCurve(samples, cfg)
	require.NoError(t, err)

	assert.Equal(t, "target", lc.Target)
	assert.Equal(t, "comp1", lc.Compare)
	require.Len(t, lc.Ratio, 3)
	assert.InDelta(t, 1.0, lc.Ratio[0], 1e-12)
	assert.InDelta(t, 0.5, lc.Ratio[1], 1e-12)
	assert.InDelta(t, 2.0, lc.Ratio[2], 1e-12)
	assert.Equal(t, samples[1].Time, lc.Times[1])
}

func TestNewLightCurveZeroComparisonFlux(t *testing.T) {
	cfg := curveConfig()
	samples := samplesWithRatios([]float64{1.0, 1.0}, 10*time.Second)
	samples[1].Flux[1] = 0

	_, err := NewLightCurve(samples, cfg)
	assert.Error(t, err)
}

func TestNewLightCurveUnknownAperture(t *testing.T) {
	cfg := curveConfig()
	cfg.TargetAperture = "nosuch"
	samples := samplesWithRatios([]float64{1.0}, 10*time.Second)

	_, err := NewLightCurve(samples, cfg)
	assert.Error(t, err)
}

func TestLightCurveStats(t *testing.T) {
	lc := LightCurve{Ratio: []float64{2, 4, 4, 4, 5, 5, 7, 9}}
	mean, stddev := lc.Stats()
	assert.InDelta(t, 5.0, mean, 1e-12)
	// Sample stddev of the classic 2,4,4,4,5,5,7,9 set.
	assert.InDelta(t, 2.13809, stddev, 1e-4)
}

func TestLightCurveRange(t *testing.T) {
	lc := LightCurve{Ratio: []float64{1.0, 0.3, 1.1, 0.9}}
	min, max := lc.Range()
	assert.Equal(t, 0.3, min)
	assert.Equal(t, 1.1, max)
}

func TestDropFindsTheDip(t *testing.T) {
	cfg := curveConfig()
	cadence := 10 * time.Second
	samples := samplesWithRatios([]float64{1.0, 1.0, 0.2, 0.2, 0.2, 1.0, 1.0}, cadence)

	lc, err := NewLightCurve(samples, cfg)
	require.NoError(t, err)

	start, end, ok := lc.Drop(0.5)
	require.True(t, ok)
	assert.Equal(t, lc.Times[2], start)
	assert.Equal(t, lc.Times[4], end)
	assert.InDelta(t, 20.0, end.Sub(start).Seconds(), 1e-9)
}

func TestDropPicksLongestRun(t *testing.T) {
	cfg := curveConfig()
	samples := samplesWithRatios([]float64{0.2, 1.0, 1.0, 0.2, 0.2, 0.2, 1.0}, 10*time.Second)

	lc, err := NewLightCurve(samples, cfg)
	require.NoError(t, err)

	start, end, ok := lc.Drop(0.5)
	require.True(t, ok)
	assert.Equal(t, lc.Times[3], start)
	assert.Equal(t, lc.Times[5], end)
}

func TestDropRunsToTheEnd(t *testing.T) {
	cfg := curveConfig()
	samples := samplesWithRatios([]float64{1.0, 1.0, 0.1, 0.1}, 10*time.Second)

	lc, err := NewLightCurve(samples, cfg)
	require.NoError(t, err)

	start, end, ok := lc.Drop(0.5)
	require.True(t, ok)
	assert.Equal(t, lc.Times[2], start)
	assert.Equal(t, lc.Times[3], end)
}

func TestDropWithFlatCurve(t *testing.T) {
	cfg := curveConfig()
	samples := samplesWithRatios([]float64{1.0, 1.01, 0.99, 1.0}, 10*time.Second)

	lc, err := NewLightCurve(samples, cfg)
	require.NoError(t, err)

	_, _, ok := lc.Drop(0.5)
	assert.False(t, ok)
}

func TestChordLengthKm(t *testing.T) {
	t0 := time.Date(2024, 3, 14, 2, 0, 0, 0, time.UTC)
	// 24s in shadow at 5 km/s is a 120km chord.
	assert.InDelta(t, 120.0, ChordLengthKm(t0, t0.Add(24*time.Second), 5.0), 1e-9)
}

// End to end over synthetic frames: two steady stars give a flat curve.
func TestPhotometryRatioIsFlat(t *testing.T) {
	cfg := curveConfig()

	t0 := time.Date(2024, 3, 14, 2, 0, 0, 0, time.UTC)
	frames := make([]fits.Frame, 4)
	for i := range frames {
		frames[i] = synthFrame("frame", t0.Add(time.Duration(i)*10*time.Second), 100, 100, testStars())
	}

	samples, err := Photometry(context.Background(), frames, cfg)
	require.NoError(t, err)
	require.Len(t, samples, len(frames))

	lc, err := NewLightCurve(samples, cfg)
	require.NoError(t, err)

	mean, stddev := lc.Stats()
	require.Greater(t, mean, 0.0)
	assert.Less(t, stddev/mean, 1e-9, "identical frames should give an exactly flat ratio")
	assert.Equal(t, t0, lc.Times[0])
}

func TestPhotometryNoApertures(t *testing.T) {
	cfg := testConfig()
	frames := []fits.Frame{synthFrame("f", time.Now(), 50, 50, testStars())}
	_, err := Photometry(context.Background(), frames, cfg)
	assert.Error(t, err)
}
