package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type fakeMatch struct {
	MatchID   string `json:"match_id"`
	PoolID    string `json:"pool_id"`
	User1ID   string `json:"user1_id"`
	User2ID   string `json:"user2_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type fakeDecision struct {
	MatchID   string `json:"match_id"`
	UserID    string `json:"user_id"`
	Decision  string `json:"decision"`
	DecidedAt string `json:"decided_at"`
}

// MatchesService is an in-memory matches service. A pool pair can be matched
// once, in either order.
type MatchesService struct {
	*recorder
	Server *httptest.Server

	notFoundWhenEmpty bool
	wrapCreated       bool

	matches   map[string]*fakeMatch
	order     []string
	pairs     map[string]string
	decisions map[string]map[string]*fakeDecision
}

// NewMatchesService starts a fake matches service that is closed with the test.
func NewMatchesService(t testing.TB) *MatchesService {
	t.Helper()

	m := &MatchesService{
		recorder:  newRecorder(),
		matches:   make(map[string]*fakeMatch),
		pairs:     make(map[string]string),
		decisions: make(map[string]map[string]*fakeDecision),
	}

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "matches"})
	})
	r.Route("/matches", func(r chi.Router) {
		r.Get("/", m.listMatches)
		r.Post("/", m.createMatch)
		r.Post("/{matchID}/decisions", m.createDecision)
		r.Get("/{matchID}/decisions/{userID}", m.getDecision)
	})

	m.Server = httptest.NewServer(r)
	t.Cleanup(m.Server.Close)
	return m
}

// URL returns the service base URL.
func (m *MatchesService) URL() string {
	return m.Server.URL
}

// SetNotFoundWhenEmpty makes the list endpoint answer 404 instead of [] for a
// user without matches.
func (m *MatchesService) SetNotFoundWhenEmpty(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notFoundWhenEmpty = v
}

// SetWrapCreatedInList makes match creation answer with a one-element list.
func (m *MatchesService) SetWrapCreatedInList(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wrapCreated = v
}

// SeedMatch stores a waiting match between two users and returns its id.
func (m *MatchesService) SeedMatch(poolID, user1ID, user2ID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(poolID, user1ID, user2ID).MatchID
}

// SeedDecision records a decision directly.
func (m *MatchesService) SeedDecision(matchID, userID, decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decideLocked(matchID, userID, decision)
}

// MatchCount returns the number of stored matches.
func (m *MatchesService) MatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matches)
}

// Status returns the status of matchID.
func (m *MatchesService) Status(matchID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match, ok := m.matches[matchID]; ok {
		return match.Status
	}
	return ""
}

func pairKey(poolID, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return poolID + "|" + a + "|" + b
}

func (m *MatchesService) insertLocked(poolID, user1ID, user2ID string) *fakeMatch {
	ts := now()
	match := &fakeMatch{
		MatchID:   uuid.NewString(),
		PoolID:    poolID,
		User1ID:   user1ID,
		User2ID:   user2ID,
		Status:    "waiting",
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	m.matches[match.MatchID] = match
	m.order = append(m.order, match.MatchID)
	m.pairs[pairKey(poolID, user1ID, user2ID)] = match.MatchID
	return match
}

func (m *MatchesService) decideLocked(matchID, userID, decision string) *fakeDecision {
	d := &fakeDecision{MatchID: matchID, UserID: userID, Decision: decision, DecidedAt: now()}
	if m.decisions[matchID] == nil {
		m.decisions[matchID] = make(map[string]*fakeDecision)
	}
	m.decisions[matchID][userID] = d

	match := m.matches[matchID]
	if decision == "reject" {
		match.Status = "rejected"
	} else if len(m.decisions[matchID]) == 2 {
		match.Status = "accepted"
	}
	match.UpdatedAt = d.DecidedAt
	return d
}

func (m *MatchesService) listMatches(w http.ResponseWriter, r *http.Request) {
	ok, done := m.enter(w, "list_matches")
	defer done()
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	m.mu.Lock()
	out := []fakeMatch{}
	for _, id := range m.order {
		match := m.matches[id]
		if userID == "" || match.User1ID == userID || match.User2ID == userID {
			out = append(out, *match)
		}
	}
	notFound := len(out) == 0 && m.notFoundWhenEmpty
	m.mu.Unlock()

	if notFound {
		writeDetail(w, http.StatusNotFound, "No matches found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *MatchesService) createMatch(w http.ResponseWriter, r *http.Request) {
	ok, done := m.enter(w, "create_match")
	defer done()
	if !ok {
		return
	}

	var req struct {
		PoolID  string `json:"pool_id"`
		User1ID string `json:"user1_id"`
		User2ID string `json:"user2_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User1ID == "" || req.User2ID == "" {
		writeDetail(w, http.StatusBadRequest, "pool_id, user1_id and user2_id are required")
		return
	}
	if req.User1ID == req.User2ID {
		writeDetail(w, http.StatusBadRequest, "A user cannot be matched with themselves")
		return
	}

	m.mu.Lock()
	if _, exists := m.pairs[pairKey(req.PoolID, req.User1ID, req.User2ID)]; exists {
		m.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Match already exists for this pair")
		return
	}
	match := *m.insertLocked(req.PoolID, req.User1ID, req.User2ID)
	wrap := m.wrapCreated
	m.mu.Unlock()

	if wrap {
		writeJSON(w, http.StatusCreated, []fakeMatch{match})
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

func (m *MatchesService) createDecision(w http.ResponseWriter, r *http.Request) {
	ok, done := m.enter(w, "create_decision")
	defer done()
	if !ok {
		return
	}

	var req struct {
		MatchID  string `json:"match_id"`
		UserID   string `json:"user_id"`
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	matchID := chi.URLParam(r, "matchID")

	m.mu.Lock()
	defer m.mu.Unlock()

	match, found := m.matches[matchID]
	if !found {
		writeDetail(w, http.StatusNotFound, "Match not found")
		return
	}
	if req.UserID != match.User1ID && req.UserID != match.User2ID {
		writeDetail(w, http.StatusForbidden, "User is not a participant in this match")
		return
	}
	if req.Decision != "accept" && req.Decision != "reject" {
		writeDetail(w, http.StatusBadRequest, "decision must be 'accept' or 'reject'")
		return
	}
	if _, decided := m.decisions[matchID][req.UserID]; decided {
		writeDetail(w, http.StatusBadRequest, "Decision already submitted")
		return
	}

	writeJSON(w, http.StatusCreated, *m.decideLocked(matchID, req.UserID, req.Decision))
}

func (m *MatchesService) getDecision(w http.ResponseWriter, r *http.Request) {
	ok, done := m.enter(w, "get_decision")
	defer done()
	if !ok {
		return
	}

	m.mu.Lock()
	d, found := m.decisions[chi.URLParam(r, "matchID")][chi.URLParam(r, "userID")]
	var out fakeDecision
	if found {
		out = *d
	}
	m.mu.Unlock()

	if !found {
		writeDetail(w, http.StatusNotFound, "Decision not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
