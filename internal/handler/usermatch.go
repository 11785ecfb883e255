package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nice2meet/usermatch/internal/handler/dto"
	"github.com/nice2meet/usermatch/internal/service"
)

// RunIDHeader carries the id of a match generation run.
const RunIDHeader = "X-Generation-Run-ID"

// UserMatchHandler handles HTTP requests under /users/{user_id}.
type UserMatchHandler struct {
	svc    *service.UserMatchService
	logger *slog.Logger
}

// NewUserMatchHandler creates a new UserMatchHandler.
func NewUserMatchHandler(svc *service.UserMatchService, logger *slog.Logger) *UserMatchHandler {
	return &UserMatchHandler{
		svc:    svc,
		logger: logger,
	}
}

// Routes registers the user resource routes on r.
func (h *UserMatchHandler) Routes(r chi.Router) {
	r.Route("/{user_id}", func(r chi.Router) {
		r.Get("/pool", h.GetPool)
		r.Post("/pool", h.JoinPool)
		r.Patch("/pool", h.UpdateCoordinates)
		r.Delete("/pool", h.LeavePool)
		r.Get("/pool/members", h.ListMembers)
		r.Post("/matches", h.GenerateMatches)
		r.Get("/matches", h.ListMatches)
		r.Get("/decisions", h.ListDecisions)
		r.Post("/matches/{match_id}/decisions", h.SubmitDecision)
	})
}

// GetPool handles GET /users/{user_id}/pool.
func (h *UserMatchHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	pool, err := h.svc.GetUserPool(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserPoolResponse(pool))
}

// JoinPool handles POST /users/{user_id}/pool.
func (h *UserMatchHandler) JoinPool(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	var req dto.JoinPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	placement, err := h.svc.AddUserToPool(r.Context(), service.AddToPoolInput{
		UserID:      userID,
		Location:    req.Location,
		Coordinates: req.Coordinates(),
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.JoinPoolResponse{
		UserID:   placement.UserID,
		PoolID:   placement.PoolID,
		Location: placement.Location,
		Member:   placement.Member,
	})
}

// UpdateCoordinates handles PATCH /users/{user_id}/pool.
func (h *UserMatchHandler) UpdateCoordinates(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	var req dto.UpdateCoordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	pool, err := h.svc.UpdateUserPoolCoordinates(r.Context(), userID, req.Coordinates())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserPoolResponse(pool))
}

// LeavePool handles DELETE /users/{user_id}/pool.
func (h *UserMatchHandler) LeavePool(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	body, err := h.svc.RemoveUserFromPool(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if len(bytes.TrimSpace(body)) == 0 {
		writeJSON(w, http.StatusOK, dto.RemovedResponse{Message: "User removed from pool", UserID: userID})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// ListMembers handles GET /users/{user_id}/pool/members.
func (h *UserMatchHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	members, err := h.svc.ListPoolMembers(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToMemberListResponse(userID, members))
}

// GenerateMatches handles POST /users/{user_id}/matches.
func (h *UserMatchHandler) GenerateMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	result, err := h.svc.GenerateMatches(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(RunIDHeader, result.RunID)
	writeJSON(w, http.StatusCreated, dto.GenerateMatchesResponse{
		Message:        result.Message,
		PoolID:         result.PoolID,
		MatchesCreated: result.MatchesCreated,
		Matches:        result.Matches,
	})
}

// ListMatches handles GET /users/{user_id}/matches.
func (h *UserMatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	matches, err := h.svc.ListUserMatches(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToMatchListResponse(userID, matches))
}

// ListDecisions handles GET /users/{user_id}/decisions.
func (h *UserMatchHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	decisions, err := h.svc.ListUserDecisions(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToDecisionListResponse(userID, decisions))
}

// SubmitDecision handles POST /users/{user_id}/matches/{match_id}/decisions.
func (h *UserMatchHandler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}
	matchID, ok := h.pathID(w, r, "match_id")
	if !ok {
		return
	}

	var req dto.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	decision, err := h.svc.SubmitDecision(r.Context(), userID, matchID, req.Decision)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, decision)
}

// pathID reads a UUID path parameter in canonical form. It writes a 400 and
// reports false when the value is not a UUID.
func (h *UserMatchHandler) pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", name+" must be a valid UUID")
		return "", false
	}
	return id.String(), true
}

// handleServiceError maps service errors to HTTP responses.
func (h *UserMatchHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoPool):
		writeError(w, http.StatusNotFound, "NO_POOL", "User is not a member of any pool. Add user to a pool first.")
	case errors.Is(err, service.ErrNotMember):
		writeError(w, http.StatusNotFound, "NOT_MEMBER", "User is not a member of any pool")
	case errors.Is(err, service.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, "MATCH_NOT_FOUND", "Match not found")
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, service.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, "INVALID_DECISION", err.Error())
	case errors.Is(err, service.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "NOT_PARTICIPANT", "User is not a participant in this match")
	case errors.Is(err, service.ErrUnavailable):
		h.logger.Warn("upstream_unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Upstream service unavailable")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
