package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/okian/rollcall/internal/adapters/repository"
)

// defaultLimit applies when GET /leaderboard has no limit.
const defaultLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	TopN(ctx context.Context, n int) ([]repository.Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N requests. Limits
// above the maximum are clamped.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n := min(defaultLimit, h.maxLimit)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrBadRequest))
			return
		}
		n = min(v, h.maxLimit)
	}
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// MemberDependencies defines the interface for single member lookups.
type MemberDependencies interface {
	Member(ctx context.Context, netID string) (repository.Entry, error)
}

// MemberHandler handles member requests.
type MemberHandler struct {
	deps MemberDependencies
}

// NewMemberHandler creates a new member handler.
func NewMemberHandler(deps MemberDependencies) *MemberHandler {
	return &MemberHandler{deps: deps}
}

// HandleGetMember handles GET /members/{netID} requests.
func (h *MemberHandler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_member"
	netID := strings.TrimSpace(chi.URLParam(r, "netID"))
	if netID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrBadRequest))
		return
	}
	entry, err := h.deps.Member(r.Context(), netID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", wrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}
