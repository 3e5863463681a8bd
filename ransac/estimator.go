// Package ransac implements sample-consensus robust model estimation: given
// data contaminated by outliers and a minimal-sample model estimator, it
// repeatedly draws minimal subsets, generates model hypotheses, scores all
// data against each hypothesis, and keeps the best-supported model.
package ransac

// Estimator is the capability a model must provide to be estimated by a
// SampleConsensus engine. D is the datum type the model is fit to, M the
// model type produced.
type Estimator[D, M any] interface {
	// SampleSize is the number of data points in a minimal sample.
	SampleSize() int

	// Hypotheses generates the candidate models determined by a minimal
	// sample of exactly SampleSize data points. A degenerate sample yields an
	// empty slice, not an error. The returned slice may be backed by storage
	// owned by the estimator and is only valid until the next call; models
	// copied out of it remain valid.
	Hypotheses(sample []D) []M

	// Residual is the scalar error of a single datum under a candidate
	// model. It must be deterministic and non-negative.
	Residual(datum D, model M) float64
}
