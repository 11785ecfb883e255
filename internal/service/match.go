package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nice2meet/usermatch/internal/model"
	"github.com/nice2meet/usermatch/internal/upstream"
)

// NoPeersMessage is reported when the user is alone in their pool.
const NoPeersMessage = "No other users in the pool to match with"

// GenerationResult is the outcome of GenerateMatches.
type GenerationResult struct {
	RunID          string
	Message        string
	PoolID         string
	MatchesCreated int
	Matches        []model.Match
}

// GenerateMatches pairs the user with up to maxMatches random peers from their pool.
// Match creation runs concurrently with a bounded number of calls in flight. A peer
// whose match cannot be created, typically because the pair already exists, is
// left out of the result without failing the run.
func (s *UserMatchService) GenerateMatches(ctx context.Context, userID string) (*GenerationResult, error) {
	runID := ulid.Make().String()
	logger := s.logger.With("run_id", runID, "user_id", userID)

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

	peers := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID != "" && m.UserID != userID {
			peers = append(peers, m.UserID)
		}
	}

	if len(peers) == 0 {
		s.metrics.ObserveGenerationFanout(0)
		return &GenerationResult{
			RunID:   runID,
			Message: NoPeersMessage,
			PoolID:  userPool.PoolID,
			Matches: []model.Match{},
		}, nil
	}

	picked := s.selector.Pick(s.maxMatches, len(peers))
	s.metrics.ObserveGenerationFanout(len(picked))

	created := make(chan model.Match, len(picked))
	var g errgroup.Group
	g.SetLimit(s.workers)

	for _, idx := range picked {
		peerID := peers[idx]
		g.Go(func() error {
			match, err := s.createMatch(ctx, userPool.PoolID, userID, peerID)
			if err != nil {
				s.metrics.IncMatchSkipped()
				logger.Debug("match not created", "peer_id", peerID, "error", err)
				return nil
			}
			s.metrics.IncMatchCreated()
			created <- match
			return nil
		})
	}
	_ = g.Wait()
	close(created)

	matches := make([]model.Match, 0, len(picked))
	for m := range created {
		matches = append(matches, m)
	}

	logger.Info("matches generated",
		"pool_id", userPool.PoolID,
		"peers", len(peers),
		"attempted", len(picked),
		"created", len(matches),
	)

	return &GenerationResult{
		RunID:          runID,
		Message:        fmt.Sprintf("Generated %d matches for user %s", len(matches), userID),
		PoolID:         userPool.PoolID,
		MatchesCreated: len(matches),
		Matches:        matches,
	}, nil
}

func (s *UserMatchService) createMatch(ctx context.Context, poolID, userID, peerID string) (model.Match, error) {
	raw, err := s.matches.CreateMatch(ctx, poolID, userID, peerID)
	if err != nil {
		return model.Match{}, err
	}
	match, err := normalizeMatch(raw)
	if err != nil {
		return model.Match{}, err
	}
	if match.Peer(userID) != peerID {
		return model.Match{}, fmt.Errorf("%w: match %s does not pair %s with %s", upstream.ErrUnexpectedFormat, match.MatchID, userID, peerID)
	}
	return match, nil
}

// normalizeMatch decodes a created match. A single-element list is unwrapped.
func normalizeMatch(raw json.RawMessage) (model.Match, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return model.Match{}, fmt.Errorf("%w: empty match payload", upstream.ErrUnexpectedFormat)
	}

	var match model.Match
	if raw[0] == '[' {
		var list []model.Match
		if err := json.Unmarshal(raw, &list); err != nil {
			return model.Match{}, fmt.Errorf("%w: %v", upstream.ErrUnexpectedFormat, err)
		}
		if len(list) == 0 {
			return model.Match{}, fmt.Errorf("%w: empty match list", upstream.ErrUnexpectedFormat)
		}
		match = list[0]
	} else if err := json.Unmarshal(raw, &match); err != nil {
		return model.Match{}, fmt.Errorf("%w: %v", upstream.ErrUnexpectedFormat, err)
	}

	if err := match.Validate(); err != nil {
		return model.Match{}, fmt.Errorf("%w: %v", upstream.ErrUnexpectedFormat, err)
	}
	return match, nil
}

// ListUserMatches returns the matches the user takes part in. No matches is not an error.
func (s *UserMatchService) ListUserMatches(ctx context.Context, userID string) ([]model.Match, error) {
	matches, err := s.matches.ListMatches(ctx, userID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return []model.Match{}, nil
		}
		return nil, unavailable(err)
	}
	if matches == nil {
		matches = []model.Match{}
	}
	for _, m := range matches {
		if !m.HasParticipant(userID) {
			s.logger.Debug("listed match does not include user", "match_id", m.MatchID, "user_id", userID)
		}
		if !m.Status.IsKnown() {
			s.logger.Debug("listed match has unknown status", "match_id", m.MatchID, "status", m.Status)
		}
	}
	return matches, nil
}

// ListUserDecisions collects the user's decision on each of their matches.
// Matches without a retrievable decision are skipped.
func (s *UserMatchService) ListUserDecisions(ctx context.Context, userID string) ([]model.Decision, error) {
	matches, err := s.ListUserMatches(ctx, userID)
	if err != nil {
		return nil, err
	}

	decisions := make([]model.Decision, 0, len(matches))
	for _, m := range matches {
		if m.MatchID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, unavailable(err)
		}

		d, err := s.matches.GetDecision(ctx, m.MatchID, userID)
		if err != nil {
			s.metrics.IncDecisionFetchSkipped()
			if !errors.Is(err, upstream.ErrNotFound) {
				s.logger.Debug("decision fetch skipped", "match_id", m.MatchID, "user_id", userID, "error", err)
			}
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// SubmitDecision records the user's accept or reject on a match. The decision value
// is validated by the matches service, not here.
func (s *UserMatchService) SubmitDecision(ctx context.Context, userID, matchID, decision string) (*model.Decision, error) {
	d, err := s.matches.CreateDecision(ctx, matchID, userID, decision)
	if err != nil {
		switch {
		case errors.Is(err, upstream.ErrBadRequest):
			return nil, fmt.Errorf("%w: %s", ErrInvalidDecision, upstream.MessageOf(err))
		case errors.Is(err, upstream.ErrForbidden):
			return nil, ErrNotParticipant
		case errors.Is(err, upstream.ErrNotFound):
			return nil, ErrMatchNotFound
		default:
			return nil, unavailable(err)
		}
	}

	s.logger.Info("decision submitted", "match_id", matchID, "user_id", userID, "decision", decision)
	return &d, nil
}
