package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rollcall/internal/adapters/repository"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
)

// RunHandler handles synchronous reconciliation requests.
type RunHandler struct {
	deps RunDependencies
}

// NewRunHandler creates a new run handler.
func NewRunHandler(deps RunDependencies) *RunHandler {
	return &RunHandler{deps: deps}
}

// HandleReconcile handles POST /reconcile requests and answers with the
// run report once the record table is written.
func (h *RunHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	t := model.Trigger{ID: uuid.NewString(), Source: model.SourceManual, At: time.Now()}
	report, err := h.deps.Reconcile(r.Context(), t)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, service.ErrRunInProgress):
		writeError(w, http.StatusConflict, "run_in_progress", err)
	case errors.Is(err, repository.ErrMissingSheet):
		writeError(w, http.StatusInternalServerError, "missing_sheet", err)
	default:
		writeError(w, http.StatusInternalServerError, "reconcile_failed", err)
	}
}
