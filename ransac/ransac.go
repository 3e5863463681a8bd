package ransac

import (
	"math"
	"math/rand"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// SampleConsensus is a configured robust-estimation engine bound to one model
// estimator. It is built once and may be used for any number of Estimate
// calls; it is not safe for concurrent use from multiple goroutines.
type SampleConsensus[D, M any] struct {
	estimator Estimator[D, M]
	params    Parameters
	variant   Variant
	rnd       *rand.Rand
	logger    golog.Logger

	// scratch reused across iterations and calls
	indices   []int
	sample    []D
	residuals []float64
}

// New builds a sample-consensus engine of the given variant around a model
// estimator.
func New[D, M any](variant Variant, params Parameters, estimator Estimator[D, M], logger golog.Logger) (*SampleConsensus[D, M], error) {
	if estimator == nil {
		return nil, errors.New("estimator cannot be nil")
	}
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid sample consensus parameters")
	}
	switch variant {
	case VariantRansac, VariantMsac, VariantLmeds:
	default:
		return nil, errors.Errorf("unknown sample consensus variant %d", int(variant))
	}
	if logger == nil {
		logger = golog.Global()
	}
	return &SampleConsensus[D, M]{
		estimator: estimator,
		params:    params,
		variant:   variant,
		rnd:       rand.New(rand.NewSource(params.Seed)),
		logger:    logger,
		sample:    make([]D, estimator.SampleSize()),
	}, nil
}

// Estimate runs the sampling loop over data and returns the best-supported
// model. The third return value is false when no model reaches the configured
// support: fewer data than a minimal sample, contamination too high, or fewer
// final inliers than MinInliers.
//
// The random state is reseeded at the start of every call, so the result for
// a given data set depends only on that data set and the configuration, never
// on earlier calls against the same engine.
func (sc *SampleConsensus[D, M]) Estimate(data []D) (M, *Summary, bool) {
	var best M
	summary := &Summary{}
	sampleSize := sc.estimator.SampleSize()
	if len(data) < sampleSize {
		sc.logger.Debugf("sample consensus: %d data points, need at least %d", len(data), sampleSize)
		return best, summary, false
	}
	sc.reset(len(data))

	bestCost := math.Inf(1)
	found := false
	maxIterations := sc.params.MaxIterations
	iteration := 0
	for ; iteration < maxIterations; iteration++ {
		sc.drawSample(data)
		for _, model := range sc.estimator.Hypotheses(sc.sample) {
			cost, inliers := sc.score(data, model)
			if cost >= bestCost {
				continue
			}
			bestCost = cost
			best = model
			found = true
			maxIterations = sc.clampIterations(neededIterations(
				sc.params.Confidence, float64(inliers)/float64(len(data)), sampleSize))
		}
	}

	summary.NumIterations = iteration
	summary.BestCost = bestCost
	if !found {
		sc.logger.Debugf("sample consensus: no model found after %d iterations", iteration)
		return best, summary, false
	}
	for i, datum := range data {
		if sc.estimator.Residual(datum, best) < sc.params.ErrorThreshold {
			summary.Inliers = append(summary.Inliers, i)
		}
	}
	summary.InlierRatio = float64(len(summary.Inliers)) / float64(len(data))
	if len(summary.Inliers) < sampleSize || len(summary.Inliers) < sc.params.MinInliers {
		sc.logger.Debugf("sample consensus: best model has %d inliers, below required support", len(summary.Inliers))
		var zero M
		return zero, summary, false
	}
	sc.logger.Debugf("sample consensus (%s): %d inliers of %d after %d iterations",
		sc.variant, len(summary.Inliers), len(data), iteration)
	return best, summary, true
}

// reset reseeds the sampler and resizes the scratch buffers for n data
// points.
func (sc *SampleConsensus[D, M]) reset(n int) {
	sc.rnd.Seed(sc.params.Seed)
	if cap(sc.indices) < n {
		sc.indices = make([]int, n)
	}
	sc.indices = sc.indices[:n]
	for i := range sc.indices {
		sc.indices[i] = i
	}
	if cap(sc.residuals) < n {
		sc.residuals = make([]float64, n)
	}
	sc.residuals = sc.residuals[:n]
}

// drawSample fills sc.sample with a minimal sample of distinct data points
// via a partial Fisher-Yates shuffle of the index buffer.
func (sc *SampleConsensus[D, M]) drawSample(data []D) {
	n := len(data)
	for i := range sc.sample {
		j := i + sc.rnd.Intn(n-i)
		sc.indices[i], sc.indices[j] = sc.indices[j], sc.indices[i]
		sc.sample[i] = data[sc.indices[i]]
	}
}

// score computes the variant cost of a model over all data (lower is better)
// along with its inlier count under ErrorThreshold.
func (sc *SampleConsensus[D, M]) score(data []D, model M) (float64, int) {
	inliers := 0
	truncatedSum := 0.
	for i, datum := range data {
		r := sc.estimator.Residual(datum, model)
		sc.residuals[i] = r
		if r < sc.params.ErrorThreshold {
			inliers++
			truncatedSum += r
		} else {
			truncatedSum += sc.params.ErrorThreshold
		}
	}
	switch sc.variant {
	case VariantMsac:
		return truncatedSum, inliers
	case VariantLmeds:
		median, err := stats.Median(sc.residuals)
		if err != nil {
			return math.Inf(1), inliers
		}
		return median, inliers
	default:
		return float64(len(data) - inliers), inliers
	}
}

// clampIterations bounds an adaptive iteration estimate to the configured
// range.
func (sc *SampleConsensus[D, M]) clampIterations(n int) int {
	if n < sc.params.MinIterations {
		return sc.params.MinIterations
	}
	if n > sc.params.MaxIterations {
		return sc.params.MaxIterations
	}
	return n
}

// neededIterations is the standard adaptive stopping bound
// k = log(1-p) / log(1-w^s) for success probability p, inlier ratio w, and
// sample size s.
func neededIterations(confidence, inlierRatio float64, sampleSize int) int {
	if inlierRatio <= 0 {
		return math.MaxInt
	}
	allInlierProb := math.Pow(inlierRatio, float64(sampleSize))
	if allInlierProb >= 1 {
		return 0
	}
	k := math.Log(1-confidence) / math.Log(1-allInlierProb)
	if k >= float64(math.MaxInt64) {
		return math.MaxInt
	}
	return int(math.Ceil(k))
}
