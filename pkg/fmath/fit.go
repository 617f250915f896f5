package fmath

import(
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FitAffine finds the least-squares affine that maps each src point
// onto its dst counterpart. Needs at least 3 correspondences. The
// design matrix's condition number (ratio of extreme singular values)
// is returned so callers can reject ill-conditioned fits - collinear
// points push it towards infinity.
func FitAffine(src, dst [][2]float64) (Aff3, float64, error) {
	n := len(src)
	if n != len(dst) {
		return Identity(), 0, fmt.Errorf("affine fit: %d src points vs %d dst points", n, len(dst))
	}
	if n < 3 {
		return Identity(), 0, fmt.Errorf("affine fit: need >=3 correspondences, have %d", n)
	}

	a := mat.NewDense(n, 3, nil)
	b := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, src[i][0])
		a.Set(i, 1, src[i][1])
		a.Set(i, 2, 1.0)
		b.Set(i, 0, dst[i][0])
		b.Set(i, 1, dst[i][1])
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return Identity(), 0, fmt.Errorf("affine fit: SVD failed to factorize")
	}
	vals := svd.Values(nil)
	cond := 0.0
	if vals[len(vals)-1] > 0 {
		cond = vals[0] / vals[len(vals)-1]
	} else {
		cond = math.Inf(1) // rank deficient
	}

	var qr mat.QR
	qr.Factorize(a)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return Identity(), cond, fmt.Errorf("affine fit: %v", err)
	}

	m := Aff3{
		sol.At(0, 0), sol.At(1, 0), sol.At(2, 0),
		sol.At(0, 1), sol.At(1, 1), sol.At(2, 1),
	}
	return m, cond, nil
}
