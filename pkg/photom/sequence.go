package photom

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/mhollis/fieldphot/pkg/fits"
	"github.com/mhollis/fieldphot/pkg/fmath"
)

// An AlignedSequence is the input sequence with every frame pixel-
// aligned to frame 0. Order and length always match the input. In
// best-effort mode a frame that failed registration keeps its
// original (unaligned) pixels and shows up in Errs - check Errs
// before trusting a light curve.
type AlignedSequence struct {
	Frames []fits.Frame
	Xforms []fmath.Aff3
	Errs   []FrameError
}

// AlignSequence registers frames[1..] against frames[0], each
// independently, so registration error never accumulates along the
// sequence the way frame-to-previous-frame chaining would.
//
// A reference frame without enough detectable stars is fatal: nothing
// can be aligned, and quietly promoting a later frame to reference
// would change what every aperture points at.
func AlignSequence(ctx context.Context, frames []fits.Frame, cfg Config) (AlignedSequence, error) {
	out := AlignedSequence{
		Frames: make([]fits.Frame, len(frames)),
		Xforms: make([]fmath.Aff3, len(frames)),
	}
	if len(frames) == 0 {
		return out, fmt.Errorf("no frames to align")
	}

	out.Frames[0] = frames[0]
	out.Xforms[0] = fmath.Identity()

	refSrcs := FindSources(&frames[0].Grid, cfg)
	if len(refSrcs) < 3 {
		return out, fmt.Errorf("reference frame %s has %d usable stars, nothing can align to it: %w",
			frames[0].Filename(), len(refSrcs), ErrInsufficientFeatures)
	}
	if len(frames) == 1 {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		i   int
		reg Registration
		err error
	}

	var wg sync.WaitGroup
	jobsChan    := make(chan int, len(frames))
	resultsChan := make(chan result, len(frames))

	// Kick off worker pool. Workers share nothing mutable - just the
	// reference frame and its star list, read-only.
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobsChan {
				if ctx.Err() != nil {
					resultsChan <- result{i: i, err: ctx.Err()}
					continue
				}
				reg, err := registerAgainst(frames[0], refSrcs, frames[i], cfg)
				resultsChan <- result{i: i, reg: reg, err: err}
			}
		}()
	}

	for i := 1; i < len(frames); i++ {
		jobsChan <- i
	}
	close(jobsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	tripped := false
	for res := range resultsChan {
		switch {

		case tripped:
			// Fail-fast already fired; in-flight results are discarded.

		case errors.Is(res.err, context.Canceled):
			// Cancelled before it ran; not a frame failure.
			out.Frames[res.i] = frames[res.i]
			out.Xforms[res.i] = fmath.Identity()

		case res.err != nil:
			fe := FrameError{Index: res.i, Time: frames[res.i].Time, Err: res.err}
			out.Errs = append(out.Errs, fe)
			out.Frames[res.i] = frames[res.i]
			out.Xforms[res.i] = fmath.Identity()
			if cfg.FailFast {
				tripped = true
				cancel()
			}

		default:
			out.Frames[res.i] = res.reg.Frame
			out.Xforms[res.i] = res.reg.Xform
			if cfg.Verbosity > 0 {
				log.Printf("aligned frame %d (%s): xform %s, %d star pairs\n",
					res.i, frames[res.i].Filename(), res.reg.Xform, len(res.reg.Pairs))
			}
		}
	}

	sort.Slice(out.Errs, func(i, j int) bool { return out.Errs[i].Index < out.Errs[j].Index })

	if err := ctx.Err(); err != nil && !tripped {
		return out, err
	}
	if cfg.FailFast && len(out.Errs) > 0 {
		return out, out.Errs[0]
	}
	return out, nil
}
