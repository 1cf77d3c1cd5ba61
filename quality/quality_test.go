package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/feedsnap/config"
	"github.com/pevans/feedsnap/failure"
	"github.com/pevans/feedsnap/snapshot"
)

var defaultGates = config.Gates{MinFieldCoverage: 0.9, MinAvgConfidence: 0.75}

func withConfidence(scores ...float64) []snapshot.ArticleMeta {
	items := make([]snapshot.ArticleMeta, len(scores))
	for i, s := range scores {
		items[i].Confidence = s
	}
	return items
}

// TestCompute verifies aggregate metrics
func TestCompute(t *testing.T) {
	items := withConfidence(0.85, 0.75, 0.70)
	sources := []snapshot.SourceEntry{
		{ID: "medium:eng"},
		{ID: "rss:blog", Degraded: true},
		{ID: "rss:go"},
	}

	m := Compute(items, sources, Counts{Discovered: 5, Malformed: 1, Duplicates: 1}, 1500*time.Millisecond)

	assert.Equal(t, 3, m.ItemCount)
	assert.Equal(t, 0.7667, m.AvgConfidence)
	assert.Equal(t, 0.70, m.MinConfidence)
	assert.Equal(t, 2, m.SourcesSucceeded)
	assert.Equal(t, 1, m.SourcesFailed)
	assert.Equal(t, 5, m.DiscoveredCount)
	assert.Equal(t, 1, m.MalformedCount)
	assert.Equal(t, 1, m.DuplicateCount)
	assert.Equal(t, 0.75, m.FieldCoverage)
	assert.Equal(t, int64(1500), m.RunDurationMs)
}

// TestCompute_Empty verifies an empty run yields zero metrics
func TestCompute_Empty(t *testing.T) {
	m := Compute(nil, nil, Counts{}, 0)
	assert.Zero(t, m.ItemCount)
	assert.Zero(t, m.AvgConfidence)
	assert.Zero(t, m.MinConfidence)
	assert.Zero(t, m.FieldCoverage)
}

// TestEvaluate_Pass verifies healthy metrics pass every gate
func TestEvaluate_Pass(t *testing.T) {
	m := Compute(withConfidence(0.85, 0.75), nil, Counts{Discovered: 2}, 0)
	assert.NoError(t, Evaluate(m, defaultGates))
}

// TestEvaluate_Fail verifies each gate independently
func TestEvaluate_Fail(t *testing.T) {
	tests := []struct {
		name    string
		metrics snapshot.Metrics
		want    error
	}{
		{
			name:    "no items",
			metrics: snapshot.Metrics{ItemCount: 0, FieldCoverage: 1, AvgConfidence: 0.85},
			want:    ErrNoItems,
		},
		{
			name:    "coverage",
			metrics: snapshot.Metrics{ItemCount: 8, FieldCoverage: 0.8, AvgConfidence: 0.85},
			want:    ErrFieldCoverage,
		},
		{
			name:    "confidence",
			metrics: snapshot.Metrics{ItemCount: 4, FieldCoverage: 1, AvgConfidence: 0.60},
			want:    ErrAvgConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Evaluate(tt.metrics, defaultGates)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, failure.QualityGateFail, failure.CodeOf(err))
			assert.Equal(t, failure.ExitQualityGate, failure.ExitCode(err))
		})
	}
}

// TestEvaluate_ReportsAll verifies multiple failing gates are all reported
func TestEvaluate_ReportsAll(t *testing.T) {
	err := Evaluate(snapshot.Metrics{}, defaultGates)
	assert.ErrorIs(t, err, ErrNoItems)
	assert.ErrorIs(t, err, ErrFieldCoverage)
	assert.ErrorIs(t, err, ErrAvgConfidence)
}
