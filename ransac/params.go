package ransac

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// Variant selects which member of the sample-consensus family an engine runs.
type Variant int

const (
	// VariantRansac scores a hypothesis by its number of inliers under
	// ErrorThreshold (classic RANSAC).
	VariantRansac Variant = iota
	// VariantMsac scores a hypothesis by the sum of residuals truncated at
	// ErrorThreshold (MSAC).
	VariantMsac
	// VariantLmeds scores a hypothesis by the median of its residuals over
	// all data (least median of squares).
	VariantLmeds
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantRansac:
		return "ransac"
	case VariantMsac:
		return "msac"
	case VariantLmeds:
		return "lmeds"
	default:
		return "unknown"
	}
}

// Parameters configures a SampleConsensus engine. ErrorThreshold is compared
// against Estimator.Residual values, so it lives in the same (typically
// squared) units.
type Parameters struct {
	ErrorThreshold float64 `json:"error_threshold"`
	Confidence     float64 `json:"confidence"`
	MinIterations  int     `json:"min_iterations"`
	MaxIterations  int     `json:"max_iterations"`
	MinInliers     int     `json:"min_inliers"`
	Seed           int64   `json:"seed"`
}

// DefaultParameters returns sane engine parameters for a given inlier error
// threshold.
func DefaultParameters(errorThreshold float64) Parameters {
	return Parameters{
		ErrorThreshold: errorThreshold,
		Confidence:     0.99,
		MinIterations:  20,
		MaxIterations:  1000,
		Seed:           1,
	}
}

// Validate checks the parameters for consistency, aggregating every violation
// into the returned error.
func (p Parameters) Validate() error {
	var err error
	if p.ErrorThreshold <= 0 {
		err = multierr.Append(err, errors.New("error_threshold must be positive"))
	}
	if p.Confidence <= 0 || p.Confidence >= 1 {
		err = multierr.Append(err, errors.New("confidence must be strictly between 0 and 1"))
	}
	if p.MinIterations <= 0 {
		err = multierr.Append(err, errors.New("min_iterations must be positive"))
	}
	if p.MaxIterations < p.MinIterations {
		err = multierr.Append(err, errors.New("max_iterations cannot be less than min_iterations"))
	}
	if p.MinInliers < 0 {
		err = multierr.Append(err, errors.New("min_inliers cannot be negative"))
	}
	return err
}

// LoadParameters loads engine parameters from a json file.
func LoadParameters(path string) (Parameters, error) {
	var params Parameters
	//nolint:gosec
	paramsFile, err := os.Open(path)
	defer utils.UncheckedErrorFunc(paramsFile.Close)
	if err != nil {
		return params, err
	}
	if err := json.NewDecoder(paramsFile).Decode(&params); err != nil {
		return params, err
	}
	if err := params.Validate(); err != nil {
		return params, errors.Wrapf(err, "invalid parameters in %s", path)
	}
	return params, nil
}

// Summary reports how a call to SampleConsensus.Estimate went. Its content is
// defined entirely by the engine.
type Summary struct {
	// Inliers are the indices into the input data whose residual under the
	// returned model is below ErrorThreshold.
	Inliers []int
	// NumIterations is how many sampling iterations were run.
	NumIterations int
	// InlierRatio is len(Inliers) over the input size.
	InlierRatio float64
	// BestCost is the variant-specific score of the returned model; lower is
	// better.
	BestCost float64
}
