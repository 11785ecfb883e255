package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type fakePool struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	CreatedAt string `json:"created_at"`

	extra   int
	members []*fakeMember
}

type fakeMember struct {
	PoolID   string   `json:"pool_id"`
	UserID   string   `json:"user_id"`
	CoordX   *float64 `json:"coord_x"`
	CoordY   *float64 `json:"coord_y"`
	JoinedAt string   `json:"joined_at"`
}

type poolView struct {
	*fakePool
	MemberCount int `json:"member_count"`
}

// PoolsService is an in-memory pools service.
type PoolsService struct {
	*recorder
	Server *httptest.Server

	pools    map[string]*fakePool
	order    []string
	memberOf map[string]string
}

// NewPoolsService starts a fake pools service that is closed with the test.
func NewPoolsService(t testing.TB) *PoolsService {
	t.Helper()

	p := &PoolsService{
		recorder: newRecorder(),
		pools:    make(map[string]*fakePool),
		memberOf: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "pools"})
	})
	r.Route("/pools", func(r chi.Router) {
		r.Get("/", p.listPools)
		r.Post("/", p.createPool)
		r.Get("/members", p.findMemberships)
		r.Delete("/members/{userID}", p.removeMember)
		r.Get("/{poolID}", p.getPool)
		r.Get("/{poolID}/members", p.listMembers)
		r.Post("/{poolID}/members", p.addMember)
		r.Patch("/{poolID}/members/{userID}", p.updateMember)
	})

	p.Server = httptest.NewServer(r)
	t.Cleanup(p.Server.Close)
	return p
}

// URL returns the service base URL.
func (p *PoolsService) URL() string {
	return p.Server.URL
}

// SeedPool creates a pool holding userIDs. extra is added to the reported
// member_count so a pool can look full without listing every member.
func (p *PoolsService) SeedPool(location string, extra int, userIDs ...string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool := p.newPoolLocked("Pool for "+location, location)
	pool.extra = extra
	for _, u := range userIDs {
		p.addMemberLocked(pool, u, nil, nil)
	}
	return pool.ID
}

// PoolsAt returns the ids of the pools at location in creation order.
func (p *PoolsService) PoolsAt(location string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, id := range p.order {
		if p.pools[id].Location == location {
			ids = append(ids, id)
		}
	}
	return ids
}

// MemberCount returns the member_count the service reports for poolID.
func (p *PoolsService) MemberCount(poolID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool, ok := p.pools[poolID]
	if !ok {
		return 0
	}
	return len(pool.members) + pool.extra
}

// PoolOf returns the pool userID belongs to, or "".
func (p *PoolsService) PoolOf(userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memberOf[userID]
}

// PoolName returns the name of poolID.
func (p *PoolsService) PoolName(poolID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[poolID]; ok {
		return pool.Name
	}
	return ""
}

// Member returns a copy of userID's membership record.
func (p *PoolsService) Member(userID string) (PoolMemberRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.findMemberLocked(userID)
	if m == nil {
		return PoolMemberRecord{}, false
	}
	return PoolMemberRecord{PoolID: m.PoolID, UserID: m.UserID, CoordX: m.CoordX, CoordY: m.CoordY}, true
}

// PoolMemberRecord is a snapshot of a fake membership.
type PoolMemberRecord struct {
	PoolID string
	UserID string
	CoordX *float64
	CoordY *float64
}

func (p *PoolsService) newPoolLocked(name, location string) *fakePool {
	pool := &fakePool{ID: uuid.NewString(), Name: name, Location: location, CreatedAt: now()}
	p.pools[pool.ID] = pool
	p.order = append(p.order, pool.ID)
	return pool
}

func (p *PoolsService) addMemberLocked(pool *fakePool, userID string, x, y *float64) *fakeMember {
	m := &fakeMember{PoolID: pool.ID, UserID: userID, CoordX: x, CoordY: y, JoinedAt: now()}
	pool.members = append(pool.members, m)
	p.memberOf[userID] = pool.ID
	return m
}

func (p *PoolsService) findMemberLocked(userID string) *fakeMember {
	pool, ok := p.pools[p.memberOf[userID]]
	if !ok {
		return nil
	}
	for _, m := range pool.members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func (p *PoolsService) view(pool *fakePool) poolView {
	return poolView{fakePool: pool, MemberCount: len(pool.members) + pool.extra}
}

func (p *PoolsService) listPools(w http.ResponseWriter, r *http.Request) {
	ok, done := p.enter(w, "list_pools")
	defer done()
	if !ok {
		return
	}

	location := r.URL.Query().Get("location")
	p.mu.Lock()
	out := []poolView{}
	for _, id := range p.order {
		pool := p.pools[id]
		if location == "" || pool.Location == location {
			out = append(out, p.view(pool))
		}
	}
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (p *PoolsService) createPool(w http.ResponseWriter, r *http.Request) {
	ok, done := p.enter(w, "create_pool")
	defer done()
	if !ok {
		return
	}

	var req struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeDetail(w, http.StatusBadRequest, "name is required")
		return
	}

	p.mu.Lock()
	view := p.view(p.newPoolLocked(req.Name, req.Location))
	p.mu.Unlock()

	writeJSON(w, http.StatusCreated, view)
}

func (p *PoolsService) findMemberships(w http.ResponseWriter, r *http.Request) {
	ok, done := p.enter(w, "find_memberships")
	defer done()
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	p.mu.Lock()
	out := []fakeMember{}
	if m := p.findMemberLocked(userID); m != nil {
		out = append(out, *m)
	}
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (p *PoolsService) getPool(w http.ResponseWriter, r *http.Request) {
	ok, done := p.enter(w, "get_pool")
	defer done()
	if !ok {
		return
	}

	p.mu.Lock()
	pool, found := p.pools[chi.URLParam(r, "poolID")]
	var view poolView
	if found {
		view = p.view(pool)
	}
	p.mu.Unlock()

	if !found {
		writeDetail(w, http.StatusNotFound, "Pool not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (p *PoolsService) listMembers(w http.ResponseWriter, r *http.Request) {
	ok, done := p.enter(w, "list_members")
	defer done()
	if !ok {
		return
	}

	p.mu.Lock()
	pool, found := p.pools[chi.URLParam(r, "poolID")]
	out := []fakeMember{}
	if found {
		for _, m := range pool.members {
			out = append(out, *m)
		}
	}
	p.mu.Unlock()

	if !found {
		writeDetail(w, http.StatusNotFound, "Pool not found")
		return
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt < out[j].JoinedAt })
	writeJSON(w, http.StatusOK, out)
}

func (p *PoolsService) addMember(w http.ResponseWriter, r *http.Request) {
	ok, done := p.enter(w, "add_member")
	defer done()
	if !ok {
		return
	}

	var req struct {
		UserID string   `json:"user_id"`
		CoordX *float64 `json:"coord_x"`
		CoordY *float64 `json:"coord_y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeDetail(w, http.StatusBadRequest, "user_id is required")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pool, found := p.pools[chi.URLParam(r, "poolID")]
	if !found {
		writeDetail(w, http.StatusNotFound, "Pool not found")
		return
	}
	if _, member := p.memberOf[req.UserID]; member {
		writeDetail(w, http.StatusBadRequest, "User is already a member of a pool")
		return
	}

	m := p.addMemberLocked(pool, req.UserID, req.CoordX, req.CoordY)
	writeJSON(w, http.StatusCreated, *m)
}

func (p *PoolsService) removeMember(w http.ResponseWriter, r *http.Request) {
	ok, done := p.enter(w, "remove_member")
	defer done()
	if !ok {
		return
	}

	userID := chi.URLParam(r, "userID")

	p.mu.Lock()
	defer p.mu.Unlock()

	poolID, member := p.memberOf[userID]
	if !member {
		writeDetail(w, http.StatusNotFound, "User is not a member of any pool")
		return
	}
	pool := p.pools[poolID]
	kept := pool.members[:0]
	for _, m := range pool.members {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	pool.members = kept
	delete(p.memberOf, userID)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "User removed from pool",
		"pool_id": poolID,
		"user_id": userID,
	})
}

func (p *PoolsService) updateMember(w http.ResponseWriter, r *http.Request) {
	ok, done := p.enter(w, "update_member")
	defer done()
	if !ok {
		return
	}

	var req struct {
		CoordX *float64 `json:"coord_x"`
		CoordY *float64 `json:"coord_y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.findMemberLocked(chi.URLParam(r, "userID"))
	if m == nil || m.PoolID != chi.URLParam(r, "poolID") {
		writeDetail(w, http.StatusNotFound, "Member not found")
		return
	}
	if req.CoordX != nil {
		m.CoordX = req.CoordX
	}
	if req.CoordY != nil {
		m.CoordY = req.CoordY
	}
	writeJSON(w, http.StatusOK, *m)
}
