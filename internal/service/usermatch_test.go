package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nice2meet/usermatch/internal/metrics"
	"github.com/nice2meet/usermatch/internal/model"
	"github.com/nice2meet/usermatch/internal/selector"
	"github.com/nice2meet/usermatch/internal/testutil"
	"github.com/nice2meet/usermatch/internal/upstream"
)

type testEnv struct {
	pools   *testutil.PoolsService
	matches *testutil.MatchesService
	rec     *metrics.InMemoryRecorder
	svc     *UserMatchService
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	env := &testEnv{
		pools:   testutil.NewPoolsService(t),
		matches: testutil.NewMatchesService(t),
		rec:     metrics.NewInMemory(),
	}

	poolsClient, err := upstream.NewPoolsClient(upstream.ClientConfig{BaseURL: env.pools.URL(), Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewPoolsClient() error = %v", err)
	}
	matchesClient, err := upstream.NewMatchesClient(upstream.ClientConfig{BaseURL: env.matches.URL(), Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewMatchesClient() error = %v", err)
	}

	opts.Metrics = env.rec
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Selector == nil {
		opts.Selector = selector.NewSeededRandom(1)
	}
	env.svc = NewUserMatchService(poolsClient, matchesClient, opts)
	return env
}

func newUserID() string {
	return uuid.NewString()
}

func TestGetUserPool(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	u1, u2 := newUserID(), newUserID()
	poolID := env.pools.SeedPool("NYC", 0, u1, u2)

	got, err := env.svc.GetUserPool(ctx, u1)
	if err != nil {
		t.Fatalf("GetUserPool() error = %v", err)
	}
	if got.PoolID != poolID {
		t.Errorf("PoolID = %s, want %s", got.PoolID, poolID)
	}
	if got.PoolName != "Pool for NYC" || got.Location != "NYC" || got.MemberCount != 2 {
		t.Errorf("unexpected pool view: %+v", got)
	}
	if got.UserID != u1 || got.JoinedAt.IsZero() {
		t.Errorf("membership fields not merged: %+v", got)
	}

	if _, err := env.svc.GetUserPool(ctx, newUserID()); !errors.Is(err, ErrNotMember) {
		t.Errorf("non-member error = %v, want ErrNotMember", err)
	}
}

func TestGetUserPool_UpstreamFailure(t *testing.T) {
	tests := []struct {
		name string
		op   string
	}{
		{"membership lookup", "find_memberships"},
		{"pool details", "get_pool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			u1 := newUserID()
			env.pools.SeedPool("NYC", 0, u1)
			env.pools.Fail(tt.op, http.StatusInternalServerError)

			_, err := env.svc.GetUserPool(context.Background(), u1)
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("error = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestAddUserToPool_CreatesPoolWhenNoneExists(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	u1 := newUserID()

	placement, err := env.svc.AddUserToPool(ctx, AddToPoolInput{UserID: u1, Location: "NYC"})
	if err != nil {
		t.Fatalf("AddUserToPool() error = %v", err)
	}
	if !placement.Created {
		t.Error("expected a new pool to be created")
	}
	if placement.UserID != u1 || placement.Location != "NYC" || placement.Member.UserID != u1 {
		t.Errorf("unexpected placement: %+v", placement)
	}
	if name := env.pools.PoolName(placement.PoolID); name != "Pool for NYC" {
		t.Errorf("pool name = %q", name)
	}
	if count := env.pools.MemberCount(placement.PoolID); count != 1 {
		t.Errorf("member_count = %d, want 1", count)
	}

	snap := env.rec.Snapshot()
	if snap.PoolsCreated != 1 || snap.PoolsJoined != 1 {
		t.Errorf("metrics = created %d joined %d", snap.PoolsCreated, snap.PoolsJoined)
	}
}

func TestAddUserToPool_NeverPicksFullPool(t *testing.T) {
	env := newTestEnv(t, Options{MaxPoolSize: 3})
	ctx := context.Background()

	full := env.pools.SeedPool("NYC", 3)
	open := env.pools.SeedPool("NYC", 1)
	env.pools.SeedPool("LA", 0)

	for i := 0; i < 2; i++ {
		placement, err := env.svc.AddUserToPool(ctx, AddToPoolInput{UserID: newUserID(), Location: "NYC"})
		if err != nil {
			t.Fatalf("AddUserToPool() error = %v", err)
		}
		if placement.PoolID == full {
			t.Fatal("placed user in a full pool")
		}
		if placement.PoolID != open || placement.Created {
			t.Fatalf("placement = %+v, want existing pool %s", placement, open)
		}
	}

	// The open pool is now full as well, so the next join creates a pool.
	placement, err := env.svc.AddUserToPool(ctx, AddToPoolInput{UserID: newUserID(), Location: "NYC"})
	if err != nil {
		t.Fatalf("AddUserToPool() error = %v", err)
	}
	if !placement.Created || placement.PoolID == full || placement.PoolID == open {
		t.Fatalf("placement = %+v, want a newly created pool", placement)
	}
}

func TestAddUserToPool_RepeatedCreation(t *testing.T) {
	env := newTestEnv(t, Options{MaxPoolSize: 1})
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		placement, err := env.svc.AddUserToPool(ctx, AddToPoolInput{UserID: newUserID(), Location: "Paris"})
		if err != nil {
			t.Fatalf("AddUserToPool() error = %v", err)
		}
		if !placement.Created || seen[placement.PoolID] {
			t.Fatalf("call %d: placement = %+v, want a fresh pool", i, placement)
		}
		seen[placement.PoolID] = true
	}
	if got := len(env.pools.PoolsAt("Paris")); got != 3 {
		t.Errorf("pools at Paris = %d, want 3", got)
	}
}

func TestAddUserToPool_SpreadsAcrossEligiblePools(t *testing.T) {
	env := newTestEnv(t, Options{MaxPoolSize: 100, Selector: selector.NewSeededRandom(3)})
	ctx := context.Background()

	a := env.pools.SeedPool("Tokyo", 0)
	b := env.pools.SeedPool("Tokyo", 0)

	counts := map[string]int{}
	for i := 0; i < 40; i++ {
		placement, err := env.svc.AddUserToPool(ctx, AddToPoolInput{UserID: newUserID(), Location: "Tokyo"})
		if err != nil {
			t.Fatalf("AddUserToPool() error = %v", err)
		}
		counts[placement.PoolID]++
	}
	if counts[a] == 0 || counts[b] == 0 {
		t.Errorf("placements not spread: %v", counts)
	}
}

func TestAddUserToPool_ForwardsCoordinates(t *testing.T) {
	env := newTestEnv(t, Options{})
	u1 := newUserID()
	x := 40.7

	_, err := env.svc.AddUserToPool(context.Background(), AddToPoolInput{
		UserID:      u1,
		Location:    "NYC",
		Coordinates: model.Coordinates{CoordX: &x},
	})
	if err != nil {
		t.Fatalf("AddUserToPool() error = %v", err)
	}

	member, ok := env.pools.Member(u1)
	if !ok {
		t.Fatal("member not stored")
	}
	if member.CoordX == nil || *member.CoordX != x || member.CoordY != nil {
		t.Errorf("coords = %v/%v", member.CoordX, member.CoordY)
	}
}

func TestAddUserToPool_Errors(t *testing.T) {
	t.Run("empty location", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		_, err := env.svc.AddUserToPool(context.Background(), AddToPoolInput{UserID: newUserID(), Location: "  "})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("error = %v, want ErrInvalidInput", err)
		}
		if env.pools.Calls("list_pools") != 0 {
			t.Error("pools service called for invalid input")
		}
	})

	for _, op := range []string{"list_pools", "create_pool", "add_member"} {
		op := op
		t.Run(op+" fails", func(t *testing.T) {
			env := newTestEnv(t, Options{})
			env.pools.Fail(op, http.StatusServiceUnavailable)

			_, err := env.svc.AddUserToPool(context.Background(), AddToPoolInput{UserID: newUserID(), Location: "NYC"})
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("error = %v, want ErrUnavailable", err)
			}
		})
	}

	t.Run("upstream rejection is unavailable", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		u1 := newUserID()
		env.pools.SeedPool("Berlin", 0, u1)

		_, err := env.svc.AddUserToPool(context.Background(), AddToPoolInput{UserID: u1, Location: "NYC"})
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("error = %v, want ErrUnavailable", err)
		}
	})
}

type stubPools struct {
	PoolsAPI
	pools   []model.Pool
	created model.Pool
}

func (s *stubPools) ListPools(context.Context, string) ([]model.Pool, error) {
	return s.pools, nil
}

func (s *stubPools) CreatePool(context.Context, string, string) (model.Pool, error) {
	return s.created, nil
}

func TestAddUserToPool_PoolWithoutID(t *testing.T) {
	svc := NewUserMatchService(&stubPools{created: model.Pool{Name: "Pool for NYC"}}, nil, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := svc.AddUserToPool(context.Background(), AddToPoolInput{UserID: "u1", Location: "NYC"})
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, upstream.ErrUnexpectedFormat) {
		t.Fatalf("error = %v, want unavailable unexpected format", err)
	}
}

func TestAddUserToPool_MalformedPoolListDoesNotCreate(t *testing.T) {
	for _, body := range []string{"null", ""} {
		t.Run("body "+strconv.Quote(body), func(t *testing.T) {
			var creates atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost {
					creates.Add(1)
					w.WriteHeader(http.StatusCreated)
					_, _ = io.WriteString(w, `{"id":"p1","name":"Pool for NYC","location":"NYC"}`)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			}))
			t.Cleanup(srv.Close)

			poolsClient, err := upstream.NewPoolsClient(upstream.ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
			if err != nil {
				t.Fatalf("NewPoolsClient() error = %v", err)
			}
			rec := metrics.NewInMemory()
			svc := NewUserMatchService(poolsClient, nil, Options{
				Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
				Metrics: rec,
			})

			_, err = svc.AddUserToPool(context.Background(), AddToPoolInput{UserID: newUserID(), Location: "NYC"})
			if !errors.Is(err, ErrUnavailable) || !errors.Is(err, upstream.ErrUnexpectedFormat) {
				t.Fatalf("error = %v, want unavailable unexpected format", err)
			}
			if n := creates.Load(); n != 0 {
				t.Errorf("create_pool calls = %d, want 0", n)
			}
			if snap := rec.Snapshot(); snap.PoolsCreated != 0 {
				t.Errorf("pools created = %d, want 0", snap.PoolsCreated)
			}
		})
	}
}

func TestListPoolMembers(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	u1, u2, u3 := newUserID(), newUserID(), newUserID()
	env.pools.SeedPool("NYC", 0, u1, u2, u3)

	members, err := env.svc.ListPoolMembers(ctx, u2)
	if err != nil {
		t.Fatalf("ListPoolMembers() error = %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("members = %d, want 3", len(members))
	}

	if _, err := env.svc.ListPoolMembers(ctx, newUserID()); !errors.Is(err, ErrNoPool) {
		t.Errorf("error = %v, want ErrNoPool", err)
	}
}

func TestRemoveUserFromPool(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	u1 := newUserID()
	env.pools.SeedPool("NYC", 0, u1)

	body, err := env.svc.RemoveUserFromPool(ctx, u1)
	if err != nil {
		t.Fatalf("RemoveUserFromPool() error = %v", err)
	}
	if !strings.Contains(string(body), "User removed from pool") {
		t.Errorf("body = %s", body)
	}
	if env.pools.PoolOf(u1) != "" {
		t.Error("user still a member")
	}

	if _, err := env.svc.RemoveUserFromPool(ctx, u1); !errors.Is(err, ErrNotMember) {
		t.Errorf("second remove error = %v, want ErrNotMember", err)
	}

	env.pools.Fail("remove_member", http.StatusBadGateway)
	if _, err := env.svc.RemoveUserFromPool(ctx, u1); !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestUpdateUserPoolCoordinates(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	u1 := newUserID()
	poolID := env.pools.SeedPool("NYC", 0, u1)
	y := -73.9

	got, err := env.svc.UpdateUserPoolCoordinates(ctx, u1, model.Coordinates{CoordY: &y})
	if err != nil {
		t.Fatalf("UpdateUserPoolCoordinates() error = %v", err)
	}
	if got.PoolID != poolID || got.UserID != u1 || got.PoolName != "Pool for NYC" || got.JoinedAt.IsZero() {
		t.Errorf("unexpected result: %+v", got)
	}

	member, _ := env.pools.Member(u1)
	if member.CoordY == nil || *member.CoordY != y || member.CoordX != nil {
		t.Errorf("coords = %v/%v", member.CoordX, member.CoordY)
	}

	if _, err := env.svc.UpdateUserPoolCoordinates(ctx, newUserID(), model.Coordinates{CoordY: &y}); !errors.Is(err, ErrNotMember) {
		t.Errorf("non-member error = %v, want ErrNotMember", err)
	}

	env.pools.Fail("update_member", http.StatusNotFound)
	if _, err := env.svc.UpdateUserPoolCoordinates(ctx, u1, model.Coordinates{CoordY: &y}); !errors.Is(err, ErrNotMember) {
		t.Errorf("upstream 404 error = %v, want ErrNotMember", err)
	}
}

func TestUpdateUserPoolCoordinates_NothingToPatch(t *testing.T) {
	env := newTestEnv(t, Options{})
	u1 := newUserID()
	poolID := env.pools.SeedPool("NYC", 0, u1)

	got, err := env.svc.UpdateUserPoolCoordinates(context.Background(), u1, model.Coordinates{})
	if err != nil {
		t.Fatalf("UpdateUserPoolCoordinates() error = %v", err)
	}
	if got.PoolID != poolID || got.UserID != u1 || got.JoinedAt.IsZero() {
		t.Errorf("unexpected result: %+v", got)
	}
	if n := env.pools.Calls("update_member"); n != 0 {
		t.Errorf("update_member calls = %d, want 0", n)
	}
}
