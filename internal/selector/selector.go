// Package selector provides strategies for choosing a subset of candidates.
//
// Pool placement and match generation both spread load by picking uniformly at
// random. The Selector interface keeps that policy swappable.
package selector

import (
	"math/rand"
	"sync"
	"time"
)

// Selector picks k distinct indices out of [0, n).
// Implementations return min(k, n) indices and never repeat an index.
type Selector interface {
	Pick(k, n int) []int
}

// Random picks uniformly at random without replacement.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a Random selector seeded from the clock.
func NewRandom() *Random {
	return NewSeededRandom(time.Now().UnixNano())
}

// NewSeededRandom returns a Random selector with a fixed seed, for reproducible runs.
func NewSeededRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Pick returns min(k, n) distinct indices in random order.
func (r *Random) Pick(k, n int) []int {
	k = clamp(k, n)
	if k == 0 {
		return []int{}
	}

	r.mu.Lock()
	perm := r.rng.Perm(n)
	r.mu.Unlock()

	return perm[:k]
}

// First picks the lowest indices in order. It is deterministic and useful when
// upstream ordering already encodes a preference.
type First struct{}

// Pick returns 0..min(k, n)-1.
func (First) Pick(k, n int) []int {
	k = clamp(k, n)
	out := make([]int, k)
	for i := range out {
		out[i] = i
	}
	return out
}

func clamp(k, n int) int {
	if k < 0 || n <= 0 {
		return 0
	}
	if k > n {
		return n
	}
	return k
}

// PickOne returns a single index chosen by s, or -1 when n is zero.
func PickOne(s Selector, n int) int {
	picked := s.Pick(1, n)
	if len(picked) == 0 {
		return -1
	}
	return picked[0]
}
