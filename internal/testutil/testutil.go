// Package testutil provides in-process fakes of the pools and matches services.
//
// The fakes keep their state in memory, mimic the upstream status codes and
// payload shapes, and let tests inject failures per operation.
package testutil

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// pythonTimeLayout mirrors the naive ISO timestamps the upstream services emit.
const pythonTimeLayout = "2006-01-02T15:04:05.000000"

func now() string {
	return time.Now().UTC().Format(pythonTimeLayout)
}

// recorder tracks calls, in-flight requests and injected failures per operation.
type recorder struct {
	mu          sync.Mutex
	calls       map[string]int
	inFlight    map[string]int
	maxInFlight map[string]int
	failures    map[string]int
	delays      map[string]time.Duration
}

func newRecorder() *recorder {
	return &recorder{
		calls:       make(map[string]int),
		inFlight:    make(map[string]int),
		maxInFlight: make(map[string]int),
		failures:    make(map[string]int),
		delays:      make(map[string]time.Duration),
	}
}

// Fail makes every later call of op answer with status.
func (r *recorder) Fail(op string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op] = status
}

// Delay makes every later call of op wait d before answering.
func (r *recorder) Delay(op string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays[op] = d
}

// Calls returns how many times op was invoked.
func (r *recorder) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// MaxInFlight returns the highest number of concurrent calls of op observed.
func (r *recorder) MaxInFlight(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight[op]
}

// enter registers a call of op. It reports false after writing the injected
// failure, in which case the caller must return. done must always be called.
func (r *recorder) enter(w http.ResponseWriter, op string) (ok bool, done func()) {
	r.mu.Lock()
	r.calls[op]++
	r.inFlight[op]++
	if r.inFlight[op] > r.maxInFlight[op] {
		r.maxInFlight[op] = r.inFlight[op]
	}
	status, failing := r.failures[op]
	delay := r.delays[op]
	r.mu.Unlock()

	done = func() {
		r.mu.Lock()
		r.inFlight[op]--
		r.mu.Unlock()
	}

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
		return false, done
	}
	return true, done
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
