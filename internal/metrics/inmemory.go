package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UpstreamCalls         map[string]uint64 // keyed by "service.operation.outcome"
	UpstreamDurationTotal time.Duration
	PoolsCreated          uint64
	PoolsJoined           uint64
	MatchesCreated        uint64
	MatchesSkipped        uint64
	GenerationRuns        uint64
	GenerationPeers       uint64
	DecisionFetchSkipped  uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu            sync.Mutex
	upstreamCalls map[string]uint64

	upstreamDurationNs   int64
	poolsCreated         uint64
	poolsJoined          uint64
	matchesCreated       uint64
	matchesSkipped       uint64
	generationRuns       uint64
	generationPeers      uint64
	decisionFetchSkipped uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{upstreamCalls: make(map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	calls := make(map[string]uint64, len(m.upstreamCalls))
	for k, v := range m.upstreamCalls {
		calls[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		UpstreamCalls:         calls,
		UpstreamDurationTotal: time.Duration(atomic.LoadInt64(&m.upstreamDurationNs)),
		PoolsCreated:          atomic.LoadUint64(&m.poolsCreated),
		PoolsJoined:           atomic.LoadUint64(&m.poolsJoined),
		MatchesCreated:        atomic.LoadUint64(&m.matchesCreated),
		MatchesSkipped:        atomic.LoadUint64(&m.matchesSkipped),
		GenerationRuns:        atomic.LoadUint64(&m.generationRuns),
		GenerationPeers:       atomic.LoadUint64(&m.generationPeers),
		DecisionFetchSkipped:  atomic.LoadUint64(&m.decisionFetchSkipped),
	}
}

// ObserveUpstreamCall counts a call by service, operation and outcome.
func (m *InMemoryRecorder) ObserveUpstreamCall(service, operation, outcome string, duration time.Duration) {
	m.mu.Lock()
	m.upstreamCalls[service+"."+operation+"."+outcome]++
	m.mu.Unlock()
	atomic.AddInt64(&m.upstreamDurationNs, duration.Nanoseconds())
}

// IncPoolCreated increments the pool created counter.
func (m *InMemoryRecorder) IncPoolCreated() {
	atomic.AddUint64(&m.poolsCreated, 1)
}

// IncPoolJoined increments the pool joined counter.
func (m *InMemoryRecorder) IncPoolJoined() {
	atomic.AddUint64(&m.poolsJoined, 1)
}

// IncMatchCreated increments the match created counter.
func (m *InMemoryRecorder) IncMatchCreated() {
	atomic.AddUint64(&m.matchesCreated, 1)
}

// IncMatchSkipped increments the swallowed match failure counter.
func (m *InMemoryRecorder) IncMatchSkipped() {
	atomic.AddUint64(&m.matchesSkipped, 1)
}

// ObserveGenerationFanout records one generation run and its peer count.
func (m *InMemoryRecorder) ObserveGenerationFanout(peers int) {
	atomic.AddUint64(&m.generationRuns, 1)
	atomic.AddUint64(&m.generationPeers, uint64(peers))
}

// IncDecisionFetchSkipped increments the skipped decision fetch counter.
func (m *InMemoryRecorder) IncDecisionFetchSkipped() {
	atomic.AddUint64(&m.decisionFetchSkipped, 1)
}
