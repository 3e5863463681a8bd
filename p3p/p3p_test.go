package p3p

import (
	"math"
	"sort"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfm/pose"
)

// rotationAboutAxis builds the rotation matrix for a rotation of angle
// radians about the given axis.
func rotationAboutAxis(axis r3.Vector, angle float64) *mat.Dense {
	axis = axis.Normalize()
	s := math.Sin(angle / 2)
	q := quat.Number{Real: math.Cos(angle / 2), Imag: s * axis.X, Jmag: s * axis.Y, Kmag: s * axis.Z}
	data := make([]float64, 9)
	basis := []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	for j, e := range basis {
		rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: e.X, Jmag: e.Y, Kmag: e.Z}), quat.Conj(q))
		data[j] = rotated.Imag
		data[3+j] = rotated.Jmag
		data[6+j] = rotated.Kmag
	}
	return mat.NewDense(3, 3, data)
}

// projectAll projects world points through a ground-truth pose onto the
// normalized image plane.
func projectAll(t *testing.T, rotation *mat.Dense, center r3.Vector, worldPoints [3]r3.Vector) [3]r2.Point {
	t.Helper()
	gt := pose.NewAbsolutePose(rotation, center)
	var features [3]r2.Point
	for i, wp := range worldPoints {
		pt, ok := gt.Project(wp)
		test.That(t, ok, test.ShouldBeTrue)
		features[i] = pt
	}
	return features
}

func TestPoseFromThreePointsRecoversTruth(t *testing.T) {
	trueRotation := rotationAboutAxis(r3.Vector{X: 1, Y: 2, Z: 3}, 0.4)
	trueCenter := r3.Vector{X: 0.5, Y: -0.3, Z: 0.2}
	worldPoints := [3]r3.Vector{
		{X: 1.2, Y: 0.4, Z: 5.1},
		{X: -0.8, Y: 1.1, Z: 4.3},
		{X: 0.3, Y: -1.5, Z: 6.2},
	}
	features := projectAll(t, trueRotation, trueCenter, worldPoints)

	var rotations []*mat.Dense
	var translations []r3.Vector
	ok := PoseFromThreePoints(features, worldPoints, &rotations, &translations)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, len(rotations), test.ShouldBeGreaterThan, 0)
	test.That(t, len(rotations), test.ShouldBeLessThanOrEqualTo, 4)
	test.That(t, len(translations), test.ShouldEqual, len(rotations))

	foundTruth := false
	for i, rot := range rotations {
		// every candidate must be a proper rotation
		test.That(t, pose.RotationIsOrthonormal(rot, 1e-9), test.ShouldBeTrue)

		// the camera center of this candidate is -R^T * t
		tr := translations[i]
		center := r3.Vector{
			X: -(rot.At(0, 0)*tr.X + rot.At(1, 0)*tr.Y + rot.At(2, 0)*tr.Z),
			Y: -(rot.At(0, 1)*tr.X + rot.At(1, 1)*tr.Y + rot.At(2, 1)*tr.Z),
			Z: -(rot.At(0, 2)*tr.X + rot.At(1, 2)*tr.Y + rot.At(2, 2)*tr.Z),
		}
		if center.Sub(trueCenter).Norm() < 1e-6 && matsAlmostEqual(rot, trueRotation, 1e-6) {
			foundTruth = true
		}
	}
	test.That(t, foundTruth, test.ShouldBeTrue)
}

func TestPoseFromThreePointsCollinear(t *testing.T) {
	features := [3]r2.Point{{X: 0.1, Y: 0.1}, {X: 0.2, Y: -0.1}, {X: -0.3, Y: 0.2}}
	worldPoints := [3]r3.Vector{
		{X: 1, Y: 1, Z: 5},
		{X: 2, Y: 2, Z: 5},
		{X: 3, Y: 3, Z: 5},
	}
	var rotations []*mat.Dense
	var translations []r3.Vector
	ok := PoseFromThreePoints(features, worldPoints, &rotations, &translations)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, rotations, test.ShouldHaveLength, 0)
	test.That(t, translations, test.ShouldHaveLength, 0)
}

func TestPoseFromThreePointsDuplicated(t *testing.T) {
	features := [3]r2.Point{{X: 0.1, Y: 0.1}, {X: 0.1, Y: 0.1}, {X: -0.3, Y: 0.2}}
	worldPoints := [3]r3.Vector{
		{X: 1, Y: 1, Z: 5},
		{X: 1, Y: 1, Z: 5},
		{X: 3, Y: -3, Z: 5},
	}
	var rotations []*mat.Dense
	var translations []r3.Vector
	ok := PoseFromThreePoints(features, worldPoints, &rotations, &translations)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, rotations, test.ShouldHaveLength, 0)
}

func TestRealQuarticRoots(t *testing.T) {
	// (x-1)(x-2)(x+3)(x-0.5) = x^4 - 0.5x^3 - 7x^2 + 9.5x - 3
	var roots [4]float64
	n := realQuarticRoots(1, -0.5, -7, 9.5, -3, &roots)
	test.That(t, n, test.ShouldEqual, 4)
	got := append([]float64{}, roots[:n]...)
	sort.Float64s(got)
	want := []float64{-3, 0.5, 1, 2}
	for i := range want {
		test.That(t, got[i], test.ShouldAlmostEqual, want[i], 1e-9)
	}

	// x^4 + 1 has no real roots
	n = realQuarticRoots(1, 0, 0, 0, 1, &roots)
	test.That(t, n, test.ShouldEqual, 0)

	// vanishing leading coefficient is degenerate
	n = realQuarticRoots(0, 1, 1, 1, 1, &roots)
	test.That(t, n, test.ShouldEqual, 0)
}

func matsAlmostEqual(a, b *mat.Dense, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(a.At(i, j)-b.At(i, j)) > tol {
				return false
			}
		}
	}
	return true
}
