// Package population derives a down-sampled copy of a plans file.
//
// The derived file is written into the run's output directory and the run
// uses it in place of the user's plans. Sampling is deterministic per
// fraction: the same source and fraction always keep the same persons.
package population

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/simwrap/internal/constants"
	"github.com/nvandessel/simwrap/internal/logging"
	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/pathutil"
)

// Request describes one down-sampling job.
type Request struct {
	// Source is the complete population file.
	Source string
	// Fraction is the share of persons to keep.
	Fraction float64
}

// NewRequest reads --plans_sample and reports whether down-sampling is
// needed. A fraction within constants.SampleTolerance of 1 (or above it)
// means the full population is used. Fractions outside (0, 1] are logged but
// not rejected; a non-positive fraction yields an empty population. NaN and
// infinities are treated like any other value that is not a number.
func NewRequest(m options.Map, d *options.Defaults, logger *slog.Logger) (*Request, bool) {
	logger = logging.OrDiscard(logger)
	raw, ok := m.Value(options.KeyPlansSample)
	if !ok {
		return nil, false
	}
	fraction, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		logger.Warn("ignoring plans sample fraction, not a number",
			"key", options.FlagName(options.KeyPlansSample), "value", raw)
		return nil, false
	}
	if fraction > 1 {
		logger.Warn("plans sample fraction should be between 0 and 1", "fraction", fraction)
	}
	if fraction <= 0 {
		logger.Warn("plans sample fraction is not positive, the sample will be empty", "fraction", fraction)
	}
	if !(fraction+constants.SampleTolerance < 1) {
		return nil, false
	}
	return &Request{Source: d.PlansPath(m), Fraction: fraction}, true
}

// Tag returns the fraction as it appears in the derived file name.
func (r *Request) Tag() string {
	return fmt.Sprintf(constants.SampleTagFormat, r.Fraction)
}

// DerivedPath returns where the sample of source at fraction is written:
// <outputDir>/<stem>_sample_<fraction><ext>. Compressed extensions such as
// .xml.gz stay intact.
func DerivedPath(outputDir, source string, fraction float64) string {
	stem, ext := pathutil.SplitExt(source)
	return filepath.Join(outputDir, stem+fmt.Sprintf(constants.SampleTagFormat, fraction)+ext)
}
