package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveUpstreamCall is a no-op.
func (n *NoopRecorder) ObserveUpstreamCall(service, operation, outcome string, duration time.Duration) {}

// IncPoolCreated is a no-op.
func (n *NoopRecorder) IncPoolCreated() {}

// IncPoolJoined is a no-op.
func (n *NoopRecorder) IncPoolJoined() {}

// IncMatchCreated is a no-op.
func (n *NoopRecorder) IncMatchCreated() {}

// IncMatchSkipped is a no-op.
func (n *NoopRecorder) IncMatchSkipped() {}

// ObserveGenerationFanout is a no-op.
func (n *NoopRecorder) ObserveGenerationFanout(peers int) {}

// IncDecisionFetchSkipped is a no-op.
func (n *NoopRecorder) IncDecisionFetchSkipped() {}
