// Package pose contains the data types shared by the minimal solvers and the
// robust estimators: 2D/3D feature correspondences and absolute camera poses.
package pose

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Correspondence2D3D pairs an observed 2D image feature with the 3D world
// point it is believed to depict. The feature must already be normalized by
// the camera intrinsics, i.e. focal length 1 and principal point at (0, 0).
type Correspondence2D3D struct {
	Feature    r2.Point
	WorldPoint r3.Vector
}

// AbsolutePose is the pose of a calibrated camera in the world frame.
// Rotation is the 3x3 orthonormal world-to-camera rotation, Position the
// camera center in world coordinates. A point X in the world projects to
// Rotation * (X - Position) in the camera frame.
type AbsolutePose struct {
	Rotation *mat.Dense
	Position r3.Vector
}

// NewAbsolutePose returns an absolute pose from a world-to-camera rotation
// and a camera center.
func NewAbsolutePose(rotation *mat.Dense, position r3.Vector) AbsolutePose {
	return AbsolutePose{Rotation: rotation, Position: position}
}

// Transform maps a world point into the camera frame.
func (p AbsolutePose) Transform(world r3.Vector) r3.Vector {
	translated := world.Sub(p.Position)
	return r3.Vector{
		X: p.Rotation.At(0, 0)*translated.X + p.Rotation.At(0, 1)*translated.Y + p.Rotation.At(0, 2)*translated.Z,
		Y: p.Rotation.At(1, 0)*translated.X + p.Rotation.At(1, 1)*translated.Y + p.Rotation.At(1, 2)*translated.Z,
		Z: p.Rotation.At(2, 0)*translated.X + p.Rotation.At(2, 1)*translated.Y + p.Rotation.At(2, 2)*translated.Z,
	}
}

// Project performs the perspective projection of a world point onto the
// normalized image plane. The second return value is false when the point has
// non-positive depth in the camera frame, in which case the projection is
// undefined and the returned point must not be used.
func (p AbsolutePose) Project(world r3.Vector) (r2.Point, bool) {
	camPt := p.Transform(world)
	if camPt.Z <= 0 {
		return r2.Point{}, false
	}
	return r2.Point{X: camPt.X / camPt.Z, Y: camPt.Y / camPt.Z}, true
}

// RotationIsOrthonormal returns true if r is orthonormal with determinant +1
// within tol, i.e. a proper rotation matrix.
func RotationIsOrthonormal(r *mat.Dense, tol float64) bool {
	rows, cols := r.Dims()
	if rows != 3 || cols != 3 {
		return false
	}
	var rrt mat.Dense
	rrt.Mul(r, r.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.
			if i == j {
				want = 1.
			}
			if math.Abs(rrt.At(i, j)-want) > tol {
				return false
			}
		}
	}
	return math.Abs(mat.Det(r)-1) <= tol
}
