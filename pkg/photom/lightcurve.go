package photom

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/mhollis/fieldphot/pkg/fits"
)

// Photometry measures every frame against the configured apertures.
// Frames are independent, so they go through the same bounded worker
// pool shape as registration; output order always matches input order.
func Photometry(ctx context.Context, frames []fits.Frame, cfg Config) ([]FluxSample, error) {
	if len(cfg.Apertures) == 0 {
		return nil, fmt.Errorf("no apertures configured")
	}

	samples := make([]FluxSample, len(frames))

	var wg sync.WaitGroup
	jobsChan := make(chan int, len(frames))

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobsChan {
				if ctx.Err() != nil {
					continue
				}
				samples[i] = MeasureFrame(frames[i], cfg.Apertures)
			}
		}()
	}

	for i := range frames {
		jobsChan <- i
	}
	close(jobsChan)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// A LightCurve is the comparison-normalized brightness time series:
// target flux over comparison flux, per frame. The division cancels
// whatever the atmosphere and optics did to both stars at once.
type LightCurve struct {
	Target  string
	Compare string
	Times   []time.Time
	Ratio   []float64
}

func NewLightCurve(samples []FluxSample, cfg Config) (LightCurve, error) {
	ti, err := cfg.ApertureIndex(cfg.TargetAperture)
	if err != nil {
		return LightCurve{}, err
	}
	ci, err := cfg.ApertureIndex(cfg.CompareAperture)
	if err != nil {
		return LightCurve{}, err
	}

	lc := LightCurve{
		Target:  cfg.TargetAperture,
		Compare: cfg.CompareAperture,
		Times:   make([]time.Time, len(samples)),
		Ratio:   make([]float64, len(samples)),
	}
	for i, s := range samples {
		if s.Flux[ci] == 0 {
			return lc, fmt.Errorf("comparison aperture '%s' has zero flux at frame %d, cannot normalize", cfg.CompareAperture, i)
		}
		lc.Times[i] = s.Time
		lc.Ratio[i] = s.Flux[ti] / s.Flux[ci]
	}
	return lc, nil
}

// Stats reports the curve's mean and standard deviation. A quiet star
// through a good alignment should show stddev/mean well under 1%.
func (lc LightCurve)Stats() (mean, stddev float64) {
	return stat.Mean(lc.Ratio, nil), stat.StdDev(lc.Ratio, nil)
}

// Range reports the curve's extremes; max-min is the peak-to-peak
// depth, the first number anyone asks about an occultation curve.
func (lc LightCurve)Range() (min, max float64) {
	min, max = lc.Ratio[0], lc.Ratio[0]
	for _, v := range lc.Ratio {
		if v < min { min = v }
		if v > max { max = v }
	}
	return min, max
}

// Drop finds the longest contiguous run of samples whose ratio sits
// below frac times the curve mean - an occultation or eclipse - and
// returns its duration. ok is false when the curve never dips.
func (lc LightCurve)Drop(frac float64) (start, end time.Time, ok bool) {
	mean, _ := lc.Stats()
	thresh := frac * mean

	bestLen, runStart := 0, -1
	for i := 0; i <= len(lc.Ratio); i++ {
		if i < len(lc.Ratio) && lc.Ratio[i] < thresh {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 && i-runStart > bestLen {
			bestLen = i - runStart
			start = lc.Times[runStart]
			end = lc.Times[i-1]
			ok = true
		}
		runStart = -1
	}
	return start, end, ok
}

// ChordLengthKm is the classic occultation size estimate: the shadow
// moves at a known speed, so the time a star stays hidden is a chord
// across the occulting body.
func ChordLengthKm(start, end time.Time, shadowSpeedKmPerSec float64) float64 {
	return shadowSpeedKmPerSec * end.Sub(start).Seconds()
}
