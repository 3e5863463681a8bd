// Package estimator robustly estimates the absolute pose of a calibrated
// camera from 2D/3D feature correspondences that may contain a high fraction
// of mismatches.
package estimator

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/p3p"
	"go.viam.com/sfm/pose"
	"go.viam.com/sfm/ransac"
)

// badDepthResidual is returned when a correspondence reprojects with
// non-positive depth under a candidate pose. Perspective division is
// undefined there, so instead of letting an indeterminate value reach the
// inlier comparison we report a finite error far above any plausible
// squared-reprojection threshold on the normalized image plane.
const badDepthResidual = 1e12

// minimalSampleSize is the fewest correspondences that determine an absolute
// pose.
const minimalSampleSize = 3

// CalibratedAbsolutePoseEstimator computes absolute pose hypotheses from
// minimal samples of 3 correspondences and scores correspondences against
// candidate poses by squared reprojection error. Features must be normalized
// by the focal length with the principal point at (0, 0).
//
// The zero value is ready to use. An instance reuses internal scratch storage
// across calls and is therefore not safe for concurrent use.
type CalibratedAbsolutePoseEstimator struct {
	rotations    []*mat.Dense
	translations []r3.Vector
	poses        []pose.AbsolutePose
}

// SampleSize returns 3.
func (e *CalibratedAbsolutePoseEstimator) SampleSize() int {
	return minimalSampleSize
}

// Hypotheses computes the up to 4 candidate poses determined by a minimal
// sample of 3 correspondences. Degenerate samples (collinear world points,
// parallel bearings, no real roots) yield an empty slice. The returned slice
// is reused on the next call; the poses themselves remain valid.
func (e *CalibratedAbsolutePoseEstimator) Hypotheses(sample []pose.Correspondence2D3D) []pose.AbsolutePose {
	e.rotations = e.rotations[:0]
	e.translations = e.translations[:0]
	e.poses = e.poses[:0]
	if len(sample) < minimalSampleSize {
		return e.poses
	}
	features := [3]r2.Point{sample[0].Feature, sample[1].Feature, sample[2].Feature}
	worldPoints := [3]r3.Vector{sample[0].WorldPoint, sample[1].WorldPoint, sample[2].WorldPoint}

	if !p3p.PoseFromThreePoints(features, worldPoints, &e.rotations, &e.translations) {
		return e.poses
	}
	for i, rot := range e.rotations {
		// The solver translation is camera-frame; the camera center in the
		// world frame is -R^T * t.
		t := e.translations[i]
		position := r3.Vector{
			X: -(rot.At(0, 0)*t.X + rot.At(1, 0)*t.Y + rot.At(2, 0)*t.Z),
			Y: -(rot.At(0, 1)*t.X + rot.At(1, 1)*t.Y + rot.At(2, 1)*t.Z),
			Z: -(rot.At(0, 2)*t.X + rot.At(1, 2)*t.Y + rot.At(2, 2)*t.Z),
		}
		e.poses = append(e.poses, pose.NewAbsolutePose(rot, position))
	}
	return e.poses
}

// Residual returns the squared reprojection error of a correspondence under a
// candidate pose: the world point is translated by the camera center,
// rotated into the camera frame, perspective-divided, and compared against
// the observed feature. A point with non-positive depth gets
// badDepthResidual.
func (e *CalibratedAbsolutePoseEstimator) Residual(c pose.Correspondence2D3D, p pose.AbsolutePose) float64 {
	reprojected, ok := p.Project(c.WorldPoint)
	if !ok {
		return badDepthResidual
	}
	dx := reprojected.X - c.Feature.X
	dy := reprojected.Y - c.Feature.Y
	return dx*dx + dy*dy
}

// Reusable is a robust absolute pose estimator whose engine is built once and
// shared across Estimate calls, amortizing construction cost when many
// correspondence sets are processed with the same configuration. Calls are
// independent of each other; an instance is not safe for concurrent use.
type Reusable struct {
	estimator CalibratedAbsolutePoseEstimator
	engine    *ransac.SampleConsensus[pose.Correspondence2D3D, pose.AbsolutePose]
}

// NewReusable builds a reusable estimator running the given sample-consensus
// variant with the given parameters.
func NewReusable(params ransac.Parameters, variant ransac.Variant, logger golog.Logger) (*Reusable, error) {
	r := &Reusable{}
	engine, err := ransac.New[pose.Correspondence2D3D, pose.AbsolutePose](variant, params, &r.estimator, logger)
	if err != nil {
		return nil, err
	}
	r.engine = engine
	return r, nil
}

// Estimate robustly estimates the camera pose from normalized
// correspondences. It returns false when the engine cannot reach its
// configured support: fewer than 3 correspondences, or contamination too high
// for the iteration budget.
func (r *Reusable) Estimate(correspondences []pose.Correspondence2D3D) (pose.AbsolutePose, *ransac.Summary, bool) {
	return r.engine.Estimate(correspondences)
}

// EstimateCalibratedAbsolutePose is the one-shot convenience entry point: it
// builds a Reusable for the given configuration, runs it once against the
// correspondences, and discards it.
func EstimateCalibratedAbsolutePose(
	params ransac.Parameters,
	variant ransac.Variant,
	correspondences []pose.Correspondence2D3D,
	logger golog.Logger,
) (pose.AbsolutePose, *ransac.Summary, bool) {
	reusable, err := NewReusable(params, variant, logger)
	if err != nil {
		if logger == nil {
			logger = golog.Global()
		}
		logger.Errorw("could not build absolute pose estimator", "error", err)
		return pose.AbsolutePose{}, &ransac.Summary{}, false
	}
	return reusable.Estimate(correspondences)
}
