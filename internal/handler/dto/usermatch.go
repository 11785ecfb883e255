// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "github.com/nice2meet/usermatch/internal/model"

// JoinPoolRequest represents the request body for joining a pool.
type JoinPoolRequest struct {
	Location string   `json:"location"`
	CoordX   *float64 `json:"coord_x,omitempty"`
	CoordY   *float64 `json:"coord_y,omitempty"`
}

// Coordinates returns the optional coordinates of the request.
func (r JoinPoolRequest) Coordinates() model.Coordinates {
	return model.Coordinates{CoordX: r.CoordX, CoordY: r.CoordY}
}

// UpdateCoordinatesRequest represents the request body for a coordinates update.
// Omitted fields are left unchanged.
type UpdateCoordinatesRequest struct {
	CoordX *float64 `json:"coord_x,omitempty"`
	CoordY *float64 `json:"coord_y,omitempty"`
}

// Coordinates returns the fields to patch.
func (r UpdateCoordinatesRequest) Coordinates() model.Coordinates {
	return model.Coordinates{CoordX: r.CoordX, CoordY: r.CoordY}
}

// DecisionRequest represents the request body for submitting a decision.
type DecisionRequest struct {
	Decision string `json:"decision"`
}

// UserPoolResponse represents a user's pool in API responses.
type UserPoolResponse struct {
	PoolID      string          `json:"pool_id"`
	PoolName    string          `json:"pool_name"`
	Location    string          `json:"location,omitempty"`
	MemberCount int             `json:"member_count"`
	JoinedAt    model.Timestamp `json:"joined_at"`
	UserID      string          `json:"user_id"`
}

// JoinPoolResponse represents the outcome of joining a pool.
type JoinPoolResponse struct {
	UserID   string               `json:"user_id"`
	PoolID   string               `json:"pool_id"`
	Location string               `json:"location"`
	Member   model.PoolMembership `json:"member"`
}

// GenerateMatchesResponse represents the outcome of a match generation run.
type GenerateMatchesResponse struct {
	Message        string        `json:"message"`
	PoolID         string        `json:"pool_id"`
	MatchesCreated int           `json:"matches_created"`
	Matches        []model.Match `json:"matches"`
}

// MatchListResponse lists a user's matches.
type MatchListResponse struct {
	UserID       string        `json:"user_id"`
	MatchesCount int           `json:"matches_count"`
	Matches      []model.Match `json:"matches"`
}

// MemberListResponse lists the members of a user's pool.
type MemberListResponse struct {
	UserID       string                 `json:"user_id"`
	MembersCount int                    `json:"members_count"`
	Members      []model.PoolMembership `json:"members"`
}

// DecisionListResponse lists a user's decisions.
type DecisionListResponse struct {
	UserID         string           `json:"user_id"`
	DecisionsCount int              `json:"decisions_count"`
	Decisions      []model.Decision `json:"decisions"`
}

// RemovedResponse is returned when the pools service sends no body on removal.
type RemovedResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// InfoResponse describes the running service.
type InfoResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToUserPoolResponse converts a UserPool model to its DTO.
func ToUserPoolResponse(p *model.UserPool) *UserPoolResponse {
	return &UserPoolResponse{
		PoolID:      p.PoolID,
		PoolName:    p.PoolName,
		Location:    p.Location,
		MemberCount: p.MemberCount,
		JoinedAt:    p.JoinedAt,
		UserID:      p.UserID,
	}
}

// ToMatchListResponse wraps matches with their count.
func ToMatchListResponse(userID string, matches []model.Match) *MatchListResponse {
	return &MatchListResponse{UserID: userID, MatchesCount: len(matches), Matches: matches}
}

// ToMemberListResponse wraps members with their count.
func ToMemberListResponse(userID string, members []model.PoolMembership) *MemberListResponse {
	return &MemberListResponse{UserID: userID, MembersCount: len(members), Members: members}
}

// ToDecisionListResponse wraps decisions with their count.
func ToDecisionListResponse(userID string, decisions []model.Decision) *DecisionListResponse {
	return &DecisionListResponse{UserID: userID, DecisionsCount: len(decisions), Decisions: decisions}
}
