// Package quality computes aggregate run metrics and evaluates the gates a
// candidate snapshot must pass before it may replace the committed one.
package quality

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pevans/feedsnap/config"
	"github.com/pevans/feedsnap/failure"
	"github.com/pevans/feedsnap/snapshot"
)

// Gate failures. Evaluate wraps them in a QUALITY_GATE_FAIL error.
var (
	ErrNoItems       = errors.New("no items admitted")
	ErrFieldCoverage = errors.New("field coverage below threshold")
	ErrAvgConfidence = errors.New("average confidence below threshold")
)

// Counts are the raw tallies a run accumulates before metrics are derived.
type Counts struct {
	Discovered int // items extracted across all sources
	Malformed  int // items rejected by the normalizer
	Duplicates int // items dropped as duplicate ids
}

// Compute derives snapshot metrics from the admitted items and source
// entries.
func Compute(items []snapshot.ArticleMeta, sources []snapshot.SourceEntry, counts Counts, duration time.Duration) snapshot.Metrics {
	m := snapshot.Metrics{
		ItemCount:       len(items),
		DiscoveredCount: counts.Discovered,
		MalformedCount:  counts.Malformed,
		DuplicateCount:  counts.Duplicates,
		RunDurationMs:   duration.Milliseconds(),
	}

	m.SourcesSucceeded, m.SourcesFailed = SourceCounts(sources)

	if len(items) > 0 {
		sum := 0.0
		min := math.Inf(1)
		for _, item := range items {
			sum += item.Confidence
			min = math.Min(min, item.Confidence)
		}
		m.AvgConfidence = round(sum/float64(len(items)), 4)
		m.MinConfidence = min
	}

	// rejected items count against coverage
	if considered := len(items) + counts.Malformed; considered > 0 {
		m.FieldCoverage = round(float64(len(items))/float64(considered), 4)
	}

	return m
}

// SourceCounts splits sources into succeeded and failed. A degraded source
// counts as failed.
func SourceCounts(sources []snapshot.SourceEntry) (succeeded, failed int) {
	for _, src := range sources {
		if src.Degraded {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}

// Evaluate checks metrics against the gates. Every failing gate is reported
// in one QUALITY_GATE_FAIL error.
func Evaluate(m snapshot.Metrics, gates config.Gates) error {
	var errs []error

	if m.ItemCount <= 0 {
		errs = append(errs, ErrNoItems)
	}
	if m.FieldCoverage < gates.MinFieldCoverage {
		errs = append(errs, fmt.Errorf("%w: %.4f < %.4f", ErrFieldCoverage, m.FieldCoverage, gates.MinFieldCoverage))
	}
	if m.AvgConfidence < gates.MinAvgConfidence {
		errs = append(errs, fmt.Errorf("%w: %.4f < %.4f", ErrAvgConfidence, m.AvgConfidence, gates.MinAvgConfidence))
	}

	if err := errors.Join(errs...); err != nil {
		return failure.New(failure.QualityGateFail, err)
	}
	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
