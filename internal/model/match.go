package model

import "errors"

// MatchStatus is the state the matches service derives from both decisions.
type MatchStatus string

// Match statuses.
const (
	MatchWaiting  MatchStatus = "waiting"
	MatchAccepted MatchStatus = "accepted"
	MatchRejected MatchStatus = "rejected"
)

// IsKnown reports whether the status is one the matches service documents.
func (s MatchStatus) IsKnown() bool {
	switch s {
	case MatchWaiting, MatchAccepted, MatchRejected:
		return true
	default:
		return false
	}
}

// DecisionValue is a participant's verdict on a match.
type DecisionValue string

// Decision values.
const (
	DecisionAccept DecisionValue = "accept"
	DecisionReject DecisionValue = "reject"
)

// Match validation errors.
var (
	ErrMatchMissingID    = errors.New("match is missing match_id")
	ErrMatchMissingUsers = errors.New("match is missing a participant")
)

// Match is a pairing of two users within a pool.
type Match struct {
	MatchID   string      `json:"match_id"`
	PoolID    string      `json:"pool_id"`
	User1ID   string      `json:"user1_id"`
	User2ID   string      `json:"user2_id"`
	Status    MatchStatus `json:"status"`
	CreatedAt *Timestamp  `json:"created_at,omitempty"`
	UpdatedAt *Timestamp  `json:"updated_at,omitempty"`
}

// Validate checks the fields every match record must carry.
func (m Match) Validate() error {
	if m.MatchID == "" {
		return ErrMatchMissingID
	}
	if m.User1ID == "" || m.User2ID == "" {
		return ErrMatchMissingUsers
	}
	return nil
}

// HasParticipant reports whether userID is one of the two matched users.
func (m Match) HasParticipant(userID string) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// Peer returns the other participant of the match, or "" if userID is not a participant.
func (m Match) Peer(userID string) string {
	switch userID {
	case m.User1ID:
		return m.User2ID
	case m.User2ID:
		return m.User1ID
	default:
		return ""
	}
}

// Decision is one user's accept/reject on a match.
type Decision struct {
	MatchID   string        `json:"match_id"`
	UserID    string        `json:"user_id"`
	Decision  DecisionValue `json:"decision"`
	DecidedAt *Timestamp    `json:"decided_at,omitempty"`
}
