// Package p3p solves the perspective-three-point problem: recovering the pose
// of a calibrated camera from exactly three 2D/3D point correspondences.
//
// The implementation follows Kneip, Scaramuzza and Siegwart, "A Novel
// Parametrization of the Perspective-Three-Point Problem for a Direct
// Computation of Absolute Camera Position and Orientation" (CVPR 2011). The
// problem reduces to a quartic polynomial and therefore admits up to four
// real solutions.
package p3p

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const degenerateTol = 1e-10

// PoseFromThreePoints computes the candidate poses of a calibrated camera
// from 3 normalized image features and the corresponding 3D world points.
// Each solution is a world-to-camera rotation R and a camera-frame
// translation t such that a world point X maps to R*X + t in the camera
// frame. Candidates are appended to rotations and translations, which the
// caller may reuse across invocations to avoid reallocation.
//
// Returns false, appending nothing, when the world points are collinear, the
// bearing vectors are parallel, or the quartic has no usable real roots.
func PoseFromThreePoints(
	features [3]r2.Point,
	worldPoints [3]r3.Vector,
	rotations *[]*mat.Dense,
	translations *[]r3.Vector,
) bool {
	// Bearing vectors of the normalized features.
	f1 := r3.Vector{X: features[0].X, Y: features[0].Y, Z: 1}.Normalize()
	f2 := r3.Vector{X: features[1].X, Y: features[1].Y, Z: 1}.Normalize()
	f3 := r3.Vector{X: features[2].X, Y: features[2].Y, Z: 1}.Normalize()
	p1, p2, p3 := worldPoints[0], worldPoints[1], worldPoints[2]

	// Collinear world points do not determine a unique pose.
	if p2.Sub(p1).Cross(p3.Sub(p1)).Norm() < degenerateTol {
		return false
	}

	// Intermediate camera frame built from the first two bearings.
	e1, e2, e3, ok := cameraFrame(f1, f2)
	if !ok {
		return false
	}
	f3tau := r3.Vector{X: e1.Dot(f3), Y: e2.Dot(f3), Z: e3.Dot(f3)}
	// Kneip's derivation requires theta in [0, pi]; reorder the first two
	// correspondences when the third bearing lands on the wrong side.
	if f3tau.Z > 0 {
		f1, f2 = f2, f1
		p1, p2 = p2, p1
		if e1, e2, e3, ok = cameraFrame(f1, f2); !ok {
			return false
		}
		f3tau = r3.Vector{X: e1.Dot(f3), Y: e2.Dot(f3), Z: e3.Dot(f3)}
	}
	if math.Abs(f3tau.Z) < degenerateTol {
		return false
	}

	// Intermediate world frame anchored at p1.
	n1 := p2.Sub(p1)
	d12 := n1.Norm()
	if d12 < degenerateTol {
		return false
	}
	n1 = n1.Mul(1 / d12)
	n3 := n1.Cross(p3.Sub(p1))
	if n3.Norm() < degenerateTol {
		return false
	}
	n3 = n3.Normalize()
	n2 := n3.Cross(n1)
	d3 := p3.Sub(p1)
	// Third world point expressed in the intermediate frame; its z vanishes.
	q1 := n1.Dot(d3)
	q2 := n2.Dot(d3)

	phi1 := f3tau.X / f3tau.Z
	phi2 := f3tau.Y / f3tau.Z

	cosBeta := f1.Dot(f2)
	b := 1/(1-cosBeta*cosBeta) - 1
	if cosBeta < 0 {
		b = -math.Sqrt(b)
	} else {
		b = math.Sqrt(b)
	}

	phi1Sq := phi1 * phi1
	phi2Sq := phi2 * phi2
	q1Sq := q1 * q1
	q1Cu := q1Sq * q1
	q1Qu := q1Cu * q1
	q2Sq := q2 * q2
	q2Cu := q2Sq * q2
	q2Qu := q2Cu * q2
	d12Sq := d12 * d12
	bSq := b * b

	// Quartic in cos(theta), coefficients from Kneip et al., eq. (11).
	a4 := -phi2Sq*q2Qu - q2Qu*phi1Sq - q2Qu
	a3 := 2*q2Cu*d12*b + 2*phi2Sq*q2Cu*d12*b - 2*phi2*q2Cu*phi1*d12
	a2 := -phi2Sq*q2Sq*q1Sq - phi2Sq*q2Sq*d12Sq*bSq - phi2Sq*q2Sq*d12Sq +
		phi2Sq*q2Qu + q2Qu*phi1Sq + 2*q1*q2Sq*d12 +
		2*phi1*phi2*q1*q2Sq*d12*b - q2Sq*q1Sq*phi1Sq +
		2*q1*q2Sq*phi2Sq*d12 - q2Sq*d12Sq*bSq - 2*q1Sq*q2Sq
	a1 := 2*q1Sq*q2*d12*b + 2*phi2*q2Cu*phi1*d12 - 2*phi2Sq*q2Cu*d12*b - 2*q1*q2*d12Sq*b
	a0 := -2*phi2*q2Sq*phi1*q1*d12*b + phi2Sq*q2Sq*d12Sq + 2*q1Cu*d12 -
		q1Sq*d12Sq + phi2Sq*q2Sq*q1Sq - q1Qu -
		2*phi2Sq*q2Sq*q1*d12 + q2Sq*phi1Sq*q1Sq + phi2Sq*q2Sq*d12Sq*bSq

	var roots [4]float64
	nRoots := realQuarticRoots(a4, a3, a2, a1, a0, &roots)

	found := false
	for _, cosTheta := range roots[:nRoots] {
		// Tolerate tiny numerical overshoot past the valid cosine range.
		if math.Abs(cosTheta) > 1 {
			if math.Abs(cosTheta) > 1+1e-9 {
				continue
			}
			cosTheta = math.Copysign(1, cosTheta)
		}
		// cot(alpha) written with numerator and denominator scaled by phi2
		// so a vanishing phi2 cannot blow up the quotient.
		cotAlpha := (phi1*q1 + cosTheta*q2*phi2 - d12*b*phi2) /
			(phi1*cosTheta*q2 - q1*phi2 + d12*phi2)

		sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
		sinAlpha := math.Sqrt(1 / (cotAlpha*cotAlpha + 1))
		cosAlpha := math.Sqrt(1 - sinAlpha*sinAlpha)
		if cotAlpha < 0 {
			cosAlpha = -cosAlpha
		}

		// Camera center in the intermediate world frame, then back to world.
		scale := sinAlpha*b + cosAlpha
		cEta := r3.Vector{
			X: d12 * cosAlpha * scale,
			Y: cosTheta * d12 * sinAlpha * scale,
			Z: sinTheta * d12 * sinAlpha * scale,
		}
		center := p1.Add(n1.Mul(cEta.X)).Add(n2.Mul(cEta.Y)).Add(n3.Mul(cEta.Z))

		rotation, ok := rotationFromCenter(center, p1, p2, f1, f2)
		if !ok {
			continue
		}
		trans := transformPoint(rotation, center).Mul(-1)
		*rotations = append(*rotations, rotation)
		*translations = append(*translations, trans)
		found = true
	}
	return found
}

// cameraFrame builds the orthonormal intermediate camera frame (e1, e2, e3)
// from the first two bearing vectors. Fails when the bearings are parallel.
func cameraFrame(f1, f2 r3.Vector) (e1, e2, e3 r3.Vector, ok bool) {
	e1 = f1
	e3 = f1.Cross(f2)
	if e3.Norm() < degenerateTol {
		return r3.Vector{}, r3.Vector{}, r3.Vector{}, false
	}
	e3 = e3.Normalize()
	e2 = e3.Cross(e1)
	return e1, e2, e3, true
}

// rotationFromCenter recovers the world-to-camera rotation for a candidate
// camera center by aligning the orthonormal triad built from the world-frame
// directions of the first two points with the triad built from their camera
// bearings. The result is exactly orthonormal with determinant +1.
func rotationFromCenter(center, p1, p2, f1, f2 r3.Vector) (*mat.Dense, bool) {
	u1 := p1.Sub(center)
	u2 := p2.Sub(center)
	if u1.Norm() < degenerateTol {
		return nil, false
	}
	a1 := u1.Normalize()
	a3 := u1.Cross(u2)
	if a3.Norm() < degenerateTol {
		return nil, false
	}
	a3 = a3.Normalize()
	a2 := a3.Cross(a1)

	b1 := f1
	b3 := f1.Cross(f2).Normalize()
	b2 := b3.Cross(b1)

	// R = b1*a1' + b2*a2' + b3*a3' maps each world-side basis vector onto its
	// camera-side counterpart.
	as := [3]r3.Vector{a1, a2, a3}
	bs := [3]r3.Vector{b1, b2, b3}
	data := make([]float64, 9)
	for k := 0; k < 3; k++ {
		bk := [3]float64{bs[k].X, bs[k].Y, bs[k].Z}
		ak := [3]float64{as[k].X, as[k].Y, as[k].Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				data[i*3+j] += bk[i] * ak[j]
			}
		}
	}
	return mat.NewDense(3, 3, data), true
}

// transformPoint applies a 3x3 rotation to a vector.
func transformPoint(rot *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rot.At(0, 0)*v.X + rot.At(0, 1)*v.Y + rot.At(0, 2)*v.Z,
		Y: rot.At(1, 0)*v.X + rot.At(1, 1)*v.Y + rot.At(1, 2)*v.Z,
		Z: rot.At(2, 0)*v.X + rot.At(2, 1)*v.Y + rot.At(2, 2)*v.Z,
	}
}

// realQuarticRoots finds the real roots of a4*x^4 + a3*x^3 + a2*x^2 + a1*x +
// a0 as the eigenvalues of the companion matrix of the monic polynomial,
// writing them into roots and returning how many were found.
func realQuarticRoots(a4, a3, a2, a1, a0 float64, roots *[4]float64) int {
	if math.Abs(a4) < degenerateTol {
		return 0
	}
	c0 := a0 / a4
	c1 := a1 / a4
	c2 := a2 / a4
	c3 := a3 / a4
	companion := mat.NewDense(4, 4, []float64{
		0, 0, 0, -c0,
		1, 0, 0, -c1,
		0, 1, 0, -c2,
		0, 0, 1, -c3,
	})
	var eig mat.Eigen
	if !eig.Factorize(companion, mat.EigenNone) {
		return 0
	}
	n := 0
	for _, v := range eig.Values(nil) {
		if math.Abs(imag(v)) < 1e-6 {
			roots[n] = real(v)
			n++
		}
	}
	return n
}
