package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcome labels for the Resolutions counter.
const (
	ResolutionOutcomeCreated   = "created"
	ResolutionOutcomeMatched   = "matched"
	ResolutionOutcomeRecovered = "recovered"
	ResolutionOutcomeRejected  = "rejected"
)

// Metrics contains all Prometheus metrics for the identity resolution service.
// Metrics are organized by subsystem: resolution, links, dedup sweep, and
// candidate ingest. All counters and histograms are registered via promauto
// for automatic registration with the default Prometheus registry.
type Metrics struct {
	// Resolutions counts resolve calls by outcome (created, matched, recovered, rejected).
	Resolutions *prometheus.CounterVec

	// ResolveDuration observes the duration of resolve calls in seconds.
	ResolveDuration prometheus.Histogram

	// ResolveCandidatesScanned observes how many same-name candidates each resolve scanned.
	ResolveCandidatesScanned prometheus.Histogram

	// LinksUpserted counts relationship link upserts.
	LinksUpserted prometheus.Counter

	// DuplicateGroupsFound counts duplicate groups reported by the batch finder.
	DuplicateGroupsFound prometheus.Counter

	// GroupSize observes the member count of reported duplicate groups.
	GroupSize prometheus.Histogram

	// MergesExecuted counts committed group merges.
	MergesExecuted prometheus.Counter

	// MergesFailed counts group merges that rolled back.
	MergesFailed prometheus.Counter

	// MergeDuration observes the duration of group merges in seconds.
	MergeDuration prometheus.Histogram

	// RecordsDeleted counts loser records removed by merges.
	RecordsDeleted prometheus.Counter

	// LinksReassigned counts links moved from losers to merge survivors.
	LinksReassigned prometheus.Counter

	// LinksCollapsed counts loser links dropped because the survivor already
	// held a link to the same context.
	LinksCollapsed prometheus.Counter

	// CandidatesConsumed counts candidate records consumed from the ingest topic.
	CandidatesConsumed prometheus.Counter

	// CandidatesRejected counts ingest candidates dropped as malformed.
	CandidatesRejected prometheus.Counter

	// EventsPublished counts identity events published, labeled by event type.
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of resolve calls by outcome",
		}, []string{"outcome"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of resolve calls in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ResolveCandidatesScanned: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_candidates_scanned",
			Help:      "Number of same-name candidates scanned per resolve call",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25},
		}),
		LinksUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_upserted_total",
			Help:      "Total number of relationship link upserts",
		}),
		DuplicateGroupsFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_groups_found_total",
			Help:      "Total number of duplicate groups reported by the batch finder",
		}),
		GroupSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duplicate_group_size",
			Help:      "Member count of reported duplicate groups",
			Buckets:   []float64{2, 3, 4, 5, 10, 25},
		}),
		MergesExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_executed_total",
			Help:      "Total number of committed duplicate group merges",
		}),
		MergesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_failed_total",
			Help:      "Total number of duplicate group merges that rolled back",
		}),
		MergeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Duration of duplicate group merges in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		RecordsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_deleted_total",
			Help:      "Total number of loser records removed by merges",
		}),
		LinksReassigned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_reassigned_total",
			Help:      "Total number of links moved from losers to merge survivors",
		}),
		LinksCollapsed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_collapsed_total",
			Help:      "Total number of duplicate loser links dropped during merges",
		}),
		CandidatesConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_consumed_total",
			Help:      "Total number of candidate records consumed from the ingest topic",
		}),
		CandidatesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_rejected_total",
			Help:      "Total number of malformed ingest candidates dropped",
		}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of identity events published by event type",
		}, []string{"event_type"}),
	}
}
