package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/nice2meet/usermatch/internal/model"
)

// PoolsClient talks to the pools service.
type PoolsClient struct {
	client *Client
}

// NewPoolsClient creates a pools service client.
func NewPoolsClient(cfg ClientConfig) (*PoolsClient, error) {
	c, err := NewClient("pools", cfg)
	if err != nil {
		return nil, err
	}
	return &PoolsClient{client: c}, nil
}

type createPoolRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type addMemberRequest struct {
	UserID string   `json:"user_id"`
	CoordX *float64 `json:"coord_x,omitempty"`
	CoordY *float64 `json:"coord_y,omitempty"`
}

// FindMemberships returns the memberships of userID. GET /pools/members?user_id=
func (p *PoolsClient) FindMemberships(ctx context.Context, userID string) ([]model.PoolMembership, error) {
	var members []model.PoolMembership
	err := p.client.doJSON(ctx, "find_memberships", http.MethodGet, "/pools/members",
		url.Values{"user_id": {userID}}, nil, &members)
	return members, err
}

// GetPool fetches pool details. GET /pools/{id}
func (p *PoolsClient) GetPool(ctx context.Context, poolID string) (model.Pool, error) {
	var pool model.Pool
	err := p.client.doJSON(ctx, "get_pool", http.MethodGet, "/pools/"+segment(poolID), nil, nil, &pool)
	return pool, err
}

// ListPools lists pools at a location. GET /pools/?location=
// Anything but a JSON list, null included, is an unexpected format.
func (p *PoolsClient) ListPools(ctx context.Context, location string) ([]model.Pool, error) {
	var pools []model.Pool
	err := p.client.doJSONRequired(ctx, "list_pools", http.MethodGet, "/pools/",
		url.Values{"location": {location}}, nil, &pools)
	return pools, err
}

// CreatePool creates a pool. POST /pools/
func (p *PoolsClient) CreatePool(ctx context.Context, name, location string) (model.Pool, error) {
	var pool model.Pool
	err := p.client.doJSON(ctx, "create_pool", http.MethodPost, "/pools/", nil,
		createPoolRequest{Name: name, Location: location}, &pool)
	return pool, err
}

// AddMember adds userID to a pool. Nil coordinates are omitted. POST /pools/{id}/members
func (p *PoolsClient) AddMember(ctx context.Context, poolID, userID string, coords model.Coordinates) (model.PoolMembership, error) {
	var member model.PoolMembership
	req := addMemberRequest{UserID: userID, CoordX: coords.CoordX, CoordY: coords.CoordY}
	err := p.client.doJSON(ctx, "add_member", http.MethodPost, "/pools/"+segment(poolID)+"/members", nil, req, &member)
	return member, err
}

// ListMembers lists a pool's members. GET /pools/{id}/members
func (p *PoolsClient) ListMembers(ctx context.Context, poolID string) ([]model.PoolMembership, error) {
	var members []model.PoolMembership
	err := p.client.doJSON(ctx, "list_members", http.MethodGet, "/pools/"+segment(poolID)+"/members", nil, nil, &members)
	return members, err
}

// RemoveMember removes userID from whichever pool holds them. The upstream
// response body is returned as-is. DELETE /pools/members/{user_id}
func (p *PoolsClient) RemoveMember(ctx context.Context, userID string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := p.client.doJSON(ctx, "remove_member", http.MethodDelete, "/pools/members/"+segment(userID), nil, nil, &raw)
	return raw, err
}

// UpdateMember patches a member's coordinates. PATCH /pools/{id}/members/{user_id}
func (p *PoolsClient) UpdateMember(ctx context.Context, poolID, userID string, coords model.Coordinates) (model.PoolMembership, error) {
	var member model.PoolMembership
	err := p.client.doJSON(ctx, "update_member", http.MethodPatch,
		"/pools/"+segment(poolID)+"/members/"+segment(userID), nil, coords, &member)
	return member, err
}

// Ping checks pools service reachability.
func (p *PoolsClient) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
