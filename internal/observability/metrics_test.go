package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_identity_resolution_new")

	assert.NotNil(t, m.Resolutions)
	assert.NotNil(t, m.ResolveDuration)
	assert.NotNil(t, m.ResolveCandidatesScanned)
	assert.NotNil(t, m.LinksUpserted)
	assert.NotNil(t, m.DuplicateGroupsFound)
	assert.NotNil(t, m.GroupSize)
	assert.NotNil(t, m.MergesExecuted)
	assert.NotNil(t, m.MergesFailed)
	assert.NotNil(t, m.MergeDuration)
	assert.NotNil(t, m.RecordsDeleted)
	assert.NotNil(t, m.LinksReassigned)
	assert.NotNil(t, m.LinksCollapsed)
	assert.NotNil(t, m.CandidatesConsumed)
	assert.NotNil(t, m.CandidatesRejected)
	assert.NotNil(t, m.EventsPublished)
}

func TestResolutionsByOutcome(t *testing.T) {
	m := NewMetrics("test_resolutions_outcome")

	m.Resolutions.WithLabelValues(ResolutionOutcomeCreated).Inc()
	m.Resolutions.WithLabelValues(ResolutionOutcomeMatched).Inc()
	m.Resolutions.WithLabelValues(ResolutionOutcomeMatched).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues(ResolutionOutcomeCreated)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Resolutions.WithLabelValues(ResolutionOutcomeMatched)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Resolutions.WithLabelValues(ResolutionOutcomeRecovered)))
}

func TestMergeCounters(t *testing.T) {
	m := NewMetrics("test_merge_counters")

	m.MergesExecuted.Inc()
	m.RecordsDeleted.Add(3)
	m.LinksReassigned.Add(5)
	m.LinksCollapsed.Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesExecuted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsDeleted))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.LinksReassigned))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinksCollapsed))
}

func TestMergeDurationHistogram(t *testing.T) {
	m := NewMetrics("test_merge_duration")

	m.MergeDuration.Observe(0.02)
	m.MergeDuration.Observe(0.3)

	var metric dto.Metric
	require.NoError(t, m.MergeDuration.Write(&metric))

	require.NotNil(t, metric.Histogram)
	assert.Equal(t, uint64(2), metric.Histogram.GetSampleCount())
	assert.InDelta(t, 0.32, metric.Histogram.GetSampleSum(), 1e-9)
}

func TestEventsPublishedByType(t *testing.T) {
	m := NewMetrics("test_events_published")

	m.EventsPublished.WithLabelValues("person.merged").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("person.merged")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("person.created")))
}
