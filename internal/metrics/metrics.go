// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Upstream call outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory for tests.
type Recorder interface {
	// Upstream client metrics
	ObserveUpstreamCall(service, operation, outcome string, duration time.Duration)

	// Pool placement metrics
	IncPoolCreated()
	IncPoolJoined()

	// Match generation metrics
	IncMatchCreated()
	IncMatchSkipped() // creation failed and was swallowed
	ObserveGenerationFanout(peers int)

	// Decision aggregation metrics
	IncDecisionFetchSkipped()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
