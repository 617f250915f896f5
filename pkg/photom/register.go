package photom

import (
	"fmt"
	"math"
	"sort"

	"github.com/mhollis/fieldphot/pkg/fits"
	"github.com/mhollis/fieldphot/pkg/fmath"
)

// A Pair is one accepted star correspondence between the reference
// frame and a target frame.
type Pair struct {
	Ref Source
	Tgt Source
}

// A Registration is the outcome of aligning one target frame to the
// reference: the resampled frame (target's header, reference's pixel
// grid geometry), the fitted transform mapping target coords into
// reference coords, and the correspondences behind it.
type Registration struct {
	Frame fits.Frame
	Xform fmath.Aff3
	Pairs []Pair
}

// Only the brightest few stars per frame take part in triangle
// matching; the combinatorics get silly fast beyond this.
const maxTriangleStars = 12

// Triangles flatter than this (height over longest side) carry no
// useful shape information and just generate false votes. Catches
// collinear stars, which side ratios alone don't.
const minTriangleFlatness = 0.1

// Register aligns tgt onto ref using star pattern matching, and
// returns the resampled target. Pixels that fall outside the target
// frame after warping are NaN, which photometry treats as missing.
func Register(ref, tgt fits.Frame, cfg Config) (Registration, error) {
	refSrcs := FindSources(&ref.Grid, cfg)
	if len(refSrcs) < 3 {
		return Registration{}, fmt.Errorf("reference %s has %d usable stars: %w", ref.Filename(), len(refSrcs), ErrInsufficientFeatures)
	}
	return registerAgainst(ref, refSrcs, tgt, cfg)
}

func registerAgainst(ref fits.Frame, refSrcs []Source, tgt fits.Frame, cfg Config) (Registration, error) {
	tgtSrcs := FindSources(&tgt.Grid, cfg)
	if len(tgtSrcs) < 3 {
		return Registration{}, fmt.Errorf("%s has %d usable stars: %w", tgt.Filename(), len(tgtSrcs), ErrInsufficientFeatures)
	}

	pairs, err := matchSources(refSrcs, tgtSrcs, cfg)
	if err != nil {
		return Registration{}, err
	}
	if len(pairs) < 3 {
		return Registration{}, fmt.Errorf("only %d star correspondences: %w", len(pairs), ErrInsufficientFeatures)
	}

	xform, pairs, err := fitPairs(pairs, cfg)
	if err != nil {
		return Registration{}, err
	}

	inv, err := xform.Invert()
	if err != nil {
		return Registration{}, fmt.Errorf("%v: %w", err, ErrDegenerateGeometry)
	}

	grid := tgt.Grid.Warp(inv, ref.Grid.Dx(), ref.Grid.Dy(), cfg.Interp, math.NaN())
	return Registration{
		Frame: tgt.WithGrid(grid),
		Xform: xform,
		Pairs: pairs,
	}, nil
}

// A triangle of detected stars, reduced to its similarity invariants.
// Vertices are ordered [opposite-longest, opposite-middle,
// opposite-shortest] so two matching triangles imply three specific
// star correspondences, not just "these six stars are related".
type triangle struct {
	v      [3]int
	r1, r2 float64 // middle/longest and shortest/longest side ratios
}

func buildTriangles(srcs []Source) []triangle {
	n := len(srcs)
	if n > maxTriangleStars {
		n = maxTriangleStars
	}

	tris := []triangle{}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				// side[x] is the length of the side opposite vertex x
				idx := [3]int{i, j, k}
				side := [3]float64{
					dist(srcs[j], srcs[k]),
					dist(srcs[i], srcs[k]),
					dist(srcs[i], srcs[j]),
				}

				// Order vertices by descending opposite side
				ord := [3]int{0, 1, 2}
				sort.Slice(ord[:], func(a, b int) bool { return side[ord[a]] > side[ord[b]] })

				longest := side[ord[0]]
				if longest == 0 {
					continue
				}
				area := areaTriangle(srcs[i].X, srcs[i].Y, srcs[j].X, srcs[j].Y, srcs[k].X, srcs[k].Y)
				if 2*area/(longest*longest) < minTriangleFlatness {
					continue
				}

				tris = append(tris, triangle{
					v:  [3]int{idx[ord[0]], idx[ord[1]], idx[ord[2]]},
					r1: side[ord[1]] / longest,
					r2: side[ord[2]] / longest,
				})
			}
		}
	}
	return tris
}

func dist(a, b Source) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// matchSources votes star correspondences via triangle invariants.
// Every pair of similar triangles votes for its three vertex pairings;
// pairings with enough agreement, assigned greedily and uniquely, win.
// The comparison count is capped by cfg.MatchBudget so a pathological
// field fails deterministically instead of grinding forever.
func matchSources(refSrcs, tgtSrcs []Source, cfg Config) ([]Pair, error) {
	refTris := buildTriangles(refSrcs)
	tgtTris := buildTriangles(tgtSrcs)

	votes := map[[2]int]int{}
	checks := 0
	for _, rt := range refTris {
		for _, tt := range tgtTris {
			checks++
			if checks > cfg.MatchBudget {
				return nil, fmt.Errorf("%d triangle comparisons: %w", checks, ErrBudgetExceeded)
			}
			if math.Abs(rt.r1-tt.r1) > cfg.TriTolerance || math.Abs(rt.r2-tt.r2) > cfg.TriTolerance {
				continue
			}
			for i := 0; i < 3; i++ {
				votes[[2]int{rt.v[i], tt.v[i]}]++
			}
		}
	}

	// Two votes of agreement normally; but a 3-star field only has one
	// triangle per side, so there is nothing to corroborate with, and a
	// single unambiguous vote has to stand.
	minVotes := 2
	if len(refTris) == 1 || len(tgtTris) == 1 {
		minVotes = 1
	}

	type cand struct {
		ref, tgt, votes int
	}
	cands := []cand{}
	for k, v := range votes {
		if v >= minVotes {
			cands = append(cands, cand{k[0], k[1], v})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].votes != cands[j].votes {
			return cands[i].votes > cands[j].votes
		}
		if cands[i].ref != cands[j].ref {
			return cands[i].ref < cands[j].ref
		}
		return cands[i].tgt < cands[j].tgt
	})

	pairs := []Pair{}
	refUsed := map[int]bool{}
	tgtUsed := map[int]bool{}
	for _, c := range cands {
		if refUsed[c.ref] || tgtUsed[c.tgt] {
			continue
		}
		refUsed[c.ref] = true
		tgtUsed[c.tgt] = true
		pairs = append(pairs, Pair{Ref: refSrcs[c.ref], Tgt: tgtSrcs[c.tgt]})
	}

	return pairs, nil
}

// fitPairs least-squares the affine, then trims any correspondence
// whose residual is suspicious and refits once - provided at least 3
// survive; otherwise the original fit stands.
func fitPairs(pairs []Pair, cfg Config) (fmath.Aff3, []Pair, error) {
	xform, err := solvePairs(pairs, cfg)
	if err != nil {
		return fmath.Identity(), nil, err
	}

	kept := []Pair{}
	for _, p := range pairs {
		x, y := xform.Apply(p.Tgt.X, p.Tgt.Y)
		if math.Hypot(x-p.Ref.X, y-p.Ref.Y) <= cfg.ResidualMax {
			kept = append(kept, p)
		}
	}

	if len(kept) >= 3 && len(kept) < len(pairs) {
		if refit, err := solvePairs(kept, cfg); err == nil {
			return refit, kept, nil
		}
	}
	return xform, pairs, nil
}

func solvePairs(pairs []Pair, cfg Config) (fmath.Aff3, error) {
	src := make([][2]float64, len(pairs))
	dst := make([][2]float64, len(pairs))
	for i, p := range pairs {
		src[i] = [2]float64{p.Tgt.X, p.Tgt.Y}
		dst[i] = [2]float64{p.Ref.X, p.Ref.Y}
	}

	m, cond, err := fmath.FitAffine(src, dst)
	if err != nil {
		return fmath.Identity(), fmt.Errorf("%v: %w", err, ErrDegenerateGeometry)
	}
	if math.IsInf(cond, 1) || cond > cfg.CondMax {
		return fmath.Identity(), fmt.Errorf("condition number %.3g: %w", cond, ErrDegenerateGeometry)
	}
	return m, nil
}
