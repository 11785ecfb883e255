package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/nice2meet/usermatch/internal/model"
)

// MatchesClient talks to the matches service.
type MatchesClient struct {
	client *Client
}

// NewMatchesClient creates a matches service client.
func NewMatchesClient(cfg ClientConfig) (*MatchesClient, error) {
	c, err := NewClient("matches", cfg)
	if err != nil {
		return nil, err
	}
	return &MatchesClient{client: c}, nil
}

type createMatchRequest struct {
	PoolID  string `json:"pool_id"`
	User1ID string `json:"user1_id"`
	User2ID string `json:"user2_id"`
}

type createDecisionRequest struct {
	MatchID  string `json:"match_id"`
	UserID   string `json:"user_id"`
	Decision string `json:"decision"`
}

// ListMatches lists the matches userID takes part in. GET /matches/?user_id=
func (m *MatchesClient) ListMatches(ctx context.Context, userID string) ([]model.Match, error) {
	var matches []model.Match
	err := m.client.doJSON(ctx, "list_matches", http.MethodGet, "/matches/",
		url.Values{"user_id": {userID}}, nil, &matches)
	return matches, err
}

// CreateMatch creates a match between two users of a pool. The body is returned
// undecoded so callers can normalize its shape. POST /matches/
func (m *MatchesClient) CreateMatch(ctx context.Context, poolID, user1ID, user2ID string) (json.RawMessage, error) {
	var raw json.RawMessage
	req := createMatchRequest{PoolID: poolID, User1ID: user1ID, User2ID: user2ID}
	err := m.client.doJSON(ctx, "create_match", http.MethodPost, "/matches/", nil, req, &raw)
	return raw, err
}

// CreateDecision records userID's decision on a match. The decision value is
// passed through unchecked. POST /matches/{id}/decisions
func (m *MatchesClient) CreateDecision(ctx context.Context, matchID, userID, decision string) (model.Decision, error) {
	var out model.Decision
	req := createDecisionRequest{MatchID: matchID, UserID: userID, Decision: decision}
	err := m.client.doJSON(ctx, "create_decision", http.MethodPost, "/matches/"+segment(matchID)+"/decisions", nil, req, &out)
	return out, err
}

// GetDecision fetches userID's decision on a match. GET /matches/{id}/decisions/{user_id}
func (m *MatchesClient) GetDecision(ctx context.Context, matchID, userID string) (model.Decision, error) {
	var out model.Decision
	err := m.client.doJSON(ctx, "get_decision", http.MethodGet,
		"/matches/"+segment(matchID)+"/decisions/"+segment(userID), nil, nil, &out)
	return out, err
}

// Ping checks matches service reachability.
func (m *MatchesClient) Ping(ctx context.Context) error {
	return m.client.Ping(ctx)
}
