package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
)

// SubmissionDependencies defines the interface for the form webhook.
type SubmissionDependencies interface {
	Submit(ctx context.Context, sub service.Submission) (model.Trigger, error)
}

// submissionRequest is the body of POST /submissions.
type submissionRequest struct {
	Timestamp string `json:"timestamp"`
	Email     string `json:"email"`
	EventCode string `json:"event_code"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Anonymous string `json:"anonymous"`
}

func (s submissionRequest) validate() error {
	switch {
	case strings.TrimSpace(s.Email) == "":
		return errors.New("missing email")
	case strings.TrimSpace(s.EventCode) == "":
		return errors.New("missing event_code")
	}
	if s.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, s.Timestamp); err != nil {
			return errors.New("invalid timestamp; must be RFC3339")
		}
	}
	return nil
}

func (s submissionRequest) submission() service.Submission {
	sub := service.Submission{
		Email:     s.Email,
		EventCode: s.EventCode,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Anonymous: s.Anonymous,
	}
	if s.Timestamp != "" {
		sub.Timestamp, _ = time.Parse(time.RFC3339, s.Timestamp)
	}
	return sub
}

// SubmissionsHandler handles form webhook requests.
type SubmissionsHandler struct {
	deps SubmissionDependencies
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(deps SubmissionDependencies) *SubmissionsHandler {
	return &SubmissionsHandler{deps: deps}
}

// HandlePostSubmission handles POST /submissions requests. The submission
// is stored before the response; 429 means it is stored but its run waits
// for the next trigger.
func (h *SubmissionsHandler) HandlePostSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_submission"
	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	t, err := h.deps.Submit(r.Context(), req.submission())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", TriggerID: t.ID})
	case errors.Is(err, service.ErrMissingEmail), errors.Is(err, service.ErrMissingCode):
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
