package fmath

// Basic 2D affine transformations, used in frame registration

import(
	"fmt"
	"math"

	"golang.org/x/image/math/f64"  // Will be "image/math/f64" at some point, hopefully make this file redundant
)

// Use a local type so we can hang methods off it. Row-major:
// [ a b c ]   maps (x,y) -> (a*x + b*y + c,  d*x + e*y + f)
// [ d e f ]
type Aff3 f64.Aff3

// Cut-n-pasted from image@0.7.0/draw/scale:matMul
func (p Aff3)Mult(q Aff3) Aff3 {
	return Aff3{
		p[3*0+0]*q[3*0+0] + p[3*0+1]*q[3*1+0],
		p[3*0+0]*q[3*0+1] + p[3*0+1]*q[3*1+1],
		p[3*0+0]*q[3*0+2] + p[3*0+1]*q[3*1+2] + p[3*0+2],
		p[3*1+0]*q[3*0+0] + p[3*1+1]*q[3*1+0],
		p[3*1+0]*q[3*0+1] + p[3*1+1]*q[3*1+1],
		p[3*1+0]*q[3*0+2] + p[3*1+1]*q[3*1+2] + p[3*1+2],
	}
}

func Identity() Aff3 {
	return Aff3{1, 0, 0,   0, 1, 0}
}

func (m1 Aff3)Translate(tx, ty float64) Aff3 {
	return m1.Mult(Aff3{1, 0, tx,   0, 1, ty})
}

func (m1 Aff3)Rotate(thetaDeg float64) Aff3 {
	cosTheta := math.Cos(thetaDeg * math.Pi / 180.0)
	sinTheta := math.Sin(thetaDeg * math.Pi / 180.0)
	return m1.Mult(Aff3{cosTheta, -1*sinTheta, 0,    sinTheta, cosTheta, 0})
}

func RotateAbout(thetaDeg, x, y float64) Aff3 {
	// Remember they compose back to front - rightmost operations performed first
	return Identity().Translate(x, y).Rotate(thetaDeg).Translate(-1*x, -1*y)
}

func (m Aff3)Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2],  m[3]*x + m[4]*y + m[5]
}

func (m Aff3)Det() float64 {
	return m[0]*m[4] - m[1]*m[3]
}

// Invert returns the inverse mapping. An affine with a near-zero
// determinant has no usable inverse.
func (m Aff3)Invert() (Aff3, error) {
	det := m.Det()
	if math.Abs(det) < 1e-12 {
		return Identity(), fmt.Errorf("affine %s is singular (det=%g)", m, det)
	}
	inv := Aff3{
		m[4]/det, -m[1]/det, 0,
		-m[3]/det, m[0]/det, 0,
	}
	inv[2] = -(inv[0]*m[2] + inv[1]*m[5])
	inv[5] = -(inv[3]*m[2] + inv[4]*m[5])
	return inv, nil
}

// IsApproxIdentity is mostly useful in tests, and to spot self-registration.
func (m Aff3)IsApproxIdentity(tol float64) bool {
	id := Identity()
	for i := range m {
		if math.Abs(m[i]-id[i]) > tol {
			return false
		}
	}
	return true
}

func (m Aff3)String() string {
	return fmt.Sprintf("[%8.4f %8.4f %10.3f / %8.4f %8.4f %10.3f]",
		m[0], m[1], m[2], m[3], m[4], m[5])
}
