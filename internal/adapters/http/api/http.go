// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/rollcall/internal/adapters/repository"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
)

// DefaultMaxLimit caps GET /leaderboard when no limit is configured.
const DefaultMaxLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service.
type Dependencies interface {
	RunDependencies
	SubmissionDependencies
	LeaderboardDependencies
	MemberDependencies
	StatsProvider
}

// RunDependencies runs a reconciliation synchronously.
type RunDependencies interface {
	Reconcile(ctx context.Context, t model.Trigger) (service.RunReport, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	runHandler         *RunHandler
	submissionsHandler *SubmissionsHandler
	leaderboardHandler *LeaderboardHandler
	memberHandler      *MemberHandler
}

// NewServer creates a new API server with all handlers. maxLimit bounds
// GET /leaderboard; values below one fall back to DefaultMaxLimit.
func NewServer(deps Dependencies, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = DefaultMaxLimit
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		runHandler:         NewRunHandler(deps),
		submissionsHandler: NewSubmissionsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		memberHandler:      NewMemberHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Post("/reconcile", MetricsMiddleware(s.runHandler.HandleReconcile, "reconcile"))
	r.Post("/submissions", MetricsMiddleware(s.submissionsHandler.HandlePostSubmission, "submissions"))
	r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	r.Get("/members/{netID}", MetricsMiddleware(s.memberHandler.HandleGetMember, "members"))
}

// Router returns a chi router with every route registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})
	s.Register(r)
	return r
}

// entryResponse is the JSON shape of one standings entry. Anonymous
// entries carry no net_id.
type entryResponse struct {
	Rank       int     `json:"rank"`
	NetID      string  `json:"net_id,omitempty"`
	Name       string  `json:"name"`
	Anonymous  bool    `json:"anonymous"`
	Points     float64 `json:"points"`
	LastUpdate string  `json:"last_update"`
}

func toEntryResponse(e repository.Entry) entryResponse {
	netID := e.NetID
	if e.Anonymous {
		netID = ""
	}
	return entryResponse{
		Rank:       e.Rank,
		NetID:      netID,
		Name:       e.Name,
		Anonymous:  e.Anonymous,
		Points:     e.Points,
		LastUpdate: e.LastUpdate.UTC().Format(time.RFC3339),
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	TriggerID string `json:"trigger_id,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
