// Package observability holds the directory service's Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "hierarchy",
		Name:      "activities_created_total",
		Help:      "Number of activities inserted into the hierarchy.",
	})
	linksTruncated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "hierarchy",
		Name:      "links_truncated_total",
		Help:      "Ancestor links omitted because they would exceed the maximum depth.",
	})
	lastActivityCreated = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "directory",
		Subsystem: "hierarchy",
		Name:      "last_activity_created_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity committed.",
	})
	geoCandidates = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "directory",
		Subsystem: "geo",
		Name:      "candidate_buildings",
		Help:      "Buildings returned by the storage prefilter per geo query.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"shape"})
	geoMatches = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "directory",
		Subsystem: "geo",
		Name:      "matched_buildings",
		Help:      "Buildings left after the exact geo predicate per geo query.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"shape"})
	ownershipCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "cache",
		Name:      "ownership_lookups_total",
		Help:      "Owned-id cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(activitiesCreated, linksTruncated, lastActivityCreated, geoCandidates, geoMatches, ownershipCacheLookups)
}

// RecordActivityCreated counts a committed activity and moves the watermark gauge.
func RecordActivityCreated(ts time.Time) {
	activitiesCreated.Inc()
	if ts.IsZero() {
		return
	}
	lastActivityCreated.Set(float64(ts.Unix()))
}

// RecordLinksTruncated counts ancestor links dropped by the depth cap.
func RecordLinksTruncated(n int) {
	if n <= 0 {
		return
	}
	linksTruncated.Add(float64(n))
}

// RecordGeoQuery observes prefilter and exact-match sizes for a radius or bbox query.
func RecordGeoQuery(shape string, candidates, matches int) {
	geoCandidates.WithLabelValues(shape).Observe(float64(candidates))
	geoMatches.WithLabelValues(shape).Observe(float64(matches))
}

// RecordCacheLookup counts an owned-id cache lookup outcome.
func RecordCacheLookup(result string) {
	ownershipCacheLookups.WithLabelValues(result).Inc()
}

// LinksTruncated exposes the truncation counter for assertions.
func LinksTruncated() prometheus.Counter { return linksTruncated }

// CacheLookups exposes the cache lookup counter for assertions.
func CacheLookups() *prometheus.CounterVec { return ownershipCacheLookups }
