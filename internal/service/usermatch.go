// Package service orchestrates the pools and matches services on behalf of a user.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nice2meet/usermatch/internal/metrics"
	"github.com/nice2meet/usermatch/internal/model"
	"github.com/nice2meet/usermatch/internal/selector"
	"github.com/nice2meet/usermatch/internal/upstream"
)

// Service errors.
var (
	ErrNotMember       = errors.New("user is not a member of any pool")
	ErrNoPool          = errors.New("user is not a member of any pool; add user to a pool first")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidDecision = errors.New("invalid decision")
	ErrNotParticipant  = errors.New("user is not a participant in this match")
	ErrMatchNotFound   = errors.New("match not found")
	ErrUnavailable     = errors.New("upstream service unavailable")
)

// Policy defaults.
const (
	DefaultMaxPoolSize  = 20
	DefaultMaxMatches   = 10
	DefaultMatchWorkers = 5
)

// PoolsAPI is the subset of the pools service the orchestration needs.
type PoolsAPI interface {
	FindMemberships(ctx context.Context, userID string) ([]model.PoolMembership, error)
	GetPool(ctx context.Context, poolID string) (model.Pool, error)
	ListPools(ctx context.Context, location string) ([]model.Pool, error)
	CreatePool(ctx context.Context, name, location string) (model.Pool, error)
	AddMember(ctx context.Context, poolID, userID string, coords model.Coordinates) (model.PoolMembership, error)
	ListMembers(ctx context.Context, poolID string) ([]model.PoolMembership, error)
	RemoveMember(ctx context.Context, userID string) (json.RawMessage, error)
	UpdateMember(ctx context.Context, poolID, userID string, coords model.Coordinates) (model.PoolMembership, error)
}

// MatchesAPI is the subset of the matches service the orchestration needs.
type MatchesAPI interface {
	ListMatches(ctx context.Context, userID string) ([]model.Match, error)
	CreateMatch(ctx context.Context, poolID, user1ID, user2ID string) (json.RawMessage, error)
	CreateDecision(ctx context.Context, matchID, userID, decision string) (model.Decision, error)
	GetDecision(ctx context.Context, matchID, userID string) (model.Decision, error)
}

// Options tunes UserMatchService. Zero values fall back to the defaults.
type Options struct {
	MaxPoolSize  int
	MaxMatches   int
	MatchWorkers int
	Selector     selector.Selector
	Metrics      metrics.Recorder
	Logger       *slog.Logger
}

// UserMatchService implements the user-facing pool and match operations.
type UserMatchService struct {
	pools       PoolsAPI
	matches     MatchesAPI
	maxPoolSize int
	maxMatches  int
	workers     int
	selector    selector.Selector
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// NewUserMatchService creates a new UserMatchService.
func NewUserMatchService(pools PoolsAPI, matches MatchesAPI, opts Options) *UserMatchService {
	if opts.MaxPoolSize <= 0 {
		opts.MaxPoolSize = DefaultMaxPoolSize
	}
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = DefaultMaxMatches
	}
	if opts.MatchWorkers <= 0 {
		opts.MatchWorkers = DefaultMatchWorkers
	}
	if opts.Selector == nil {
		opts.Selector = selector.NewRandom()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &UserMatchService{
		pools:       pools,
		matches:     matches,
		maxPoolSize: opts.MaxPoolSize,
		maxMatches:  opts.MaxMatches,
		workers:     opts.MatchWorkers,
		selector:    opts.Selector,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "service.usermatch"),
	}
}

// GetUserPool resolves the user's membership and merges it with its pool details.
func (s *UserMatchService) GetUserPool(ctx context.Context, userID string) (*model.UserPool, error) {
	memberships, err := s.pools.FindMemberships(ctx, userID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, unavailable(err)
	}
	if len(memberships) == 0 {
		return nil, ErrNotMember
	}

	// The pools service keeps at most one membership per user.
	member := memberships[0]
	if member.PoolID == "" {
		return nil, unavailable(fmt.Errorf("%w: membership without pool_id", upstream.ErrUnexpectedFormat))
	}

	pool, err := s.pools.GetPool(ctx, member.PoolID)
	if err != nil {
		return nil, unavailable(err)
	}

	userPool := &model.UserPool{
		PoolID:      pool.ID,
		PoolName:    pool.Name,
		Location:    pool.Location,
		MemberCount: pool.MemberCount,
		JoinedAt:    member.JoinedAt,
		UserID:      member.UserID,
	}
	if userPool.PoolID == "" {
		userPool.PoolID = member.PoolID
	}
	if userPool.UserID == "" {
		userPool.UserID = userID
	}
	return userPool, nil
}

// unavailable wraps an upstream failure so both ErrUnavailable and the cause match.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func normalizeLocation(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", fmt.Errorf("%w: location is required", ErrInvalidInput)
	}
	return location, nil
}
