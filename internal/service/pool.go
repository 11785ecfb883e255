package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nice2meet/usermatch/internal/model"
	"github.com/nice2meet/usermatch/internal/selector"
	"github.com/nice2meet/usermatch/internal/upstream"
)

// AddToPoolInput defines input for joining a pool.
type AddToPoolInput struct {
	UserID      string
	Location    string
	Coordinates model.Coordinates
}

// PoolPlacement is the outcome of AddUserToPool.
type PoolPlacement struct {
	UserID   string
	PoolID   string
	Location string
	Member   model.PoolMembership
	Created  bool
}

// AddUserToPool places the user in a pool at the requested location. Pools at or
// above the size limit are never chosen; when none has room a new pool is created.
func (s *UserMatchService) AddUserToPool(ctx context.Context, input AddToPoolInput) (*PoolPlacement, error) {
	location, err := normalizeLocation(input.Location)
	if err != nil {
		return nil, err
	}

	pools, err := s.pools.ListPools(ctx, location)
	if err != nil {
		return nil, unavailable(err)
	}

	eligible := make([]model.Pool, 0, len(pools))
	for _, p := range pools {
		if p.HasCapacity(s.maxPoolSize) {
			eligible = append(eligible, p)
		}
	}

	var (
		pool    model.Pool
		created bool
	)
	if len(eligible) == 0 {
		pool, err = s.pools.CreatePool(ctx, model.PoolNameFor(location), location)
		if err != nil {
			return nil, unavailable(err)
		}
		created = true
		s.metrics.IncPoolCreated()
	} else {
		pool = eligible[selector.PickOne(s.selector, len(eligible))]
	}

	if pool.ID == "" {
		return nil, unavailable(fmt.Errorf("%w: pool without id", upstream.ErrUnexpectedFormat))
	}

	member, err := s.pools.AddMember(ctx, pool.ID, input.UserID, input.Coordinates)
	if err != nil {
		return nil, unavailable(err)
	}
	s.metrics.IncPoolJoined()

	s.logger.Info("user placed in pool",
		"user_id", input.UserID,
		"pool_id", pool.ID,
		"location", location,
		"created", created,
		"eligible", len(eligible),
	)

	return &PoolPlacement{
		UserID:   input.UserID,
		PoolID:   pool.ID,
		Location: location,
		Member:   member,
		Created:  created,
	}, nil
}

// ListPoolMembers returns every member of the user's pool, the user included.
func (s *UserMatchService) ListPoolMembers(ctx context.Context, userID string) ([]model.PoolMembership, error) {
	userPool, err := s.GetUserPool(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return nil, ErrNoPool
		}
		return nil, err
	}

	members, err := s.pools.ListMembers(ctx, userPool.PoolID)
	if err != nil {
		return nil, unavailable(err)
	}
	if members == nil {
		members = []model.PoolMembership{}
	}
	return members, nil
}

// RemoveUserFromPool removes the user's membership. The pools service response is
// returned unchanged.
func (s *UserMatchService) RemoveUserFromPool(ctx context.Context, userID string) (json.RawMessage, error) {
	result, err := s.pools.RemoveMember(ctx, userID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, unavailable(err)
	}

	s.logger.Info("user removed from pool", "user_id", userID)
	return result, nil
}

// UpdateUserPoolCoordinates patches the coordinates the user provided and returns
// the refreshed pool view. Unset coordinates are left unchanged, so an update
// with neither coordinate returns the current view without calling upstream.
func (s *UserMatchService) UpdateUserPoolCoordinates(ctx context.Context, userID string, coords model.Coordinates) (*model.UserPool, error) {
	userPool, err := s.GetUserPool(ctx, userID)
	if err != nil {
		return nil, err
	}
	if coords.IsEmpty() {
		return userPool, nil
	}

	member, err := s.pools.UpdateMember(ctx, userPool.PoolID, userID, coords)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, unavailable(err)
	}

	// member_count comes from the earlier read and may already be stale.
	updated := *userPool
	updated.JoinedAt = member.JoinedAt
	updated.UserID = userID
	return &updated, nil
}
