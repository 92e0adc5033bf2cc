package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js-playground/internal/service"
)

// ChallengeHandler grades challenge submissions.
type ChallengeHandler struct {
	challenges *service.ChallengeService
	logger     *slog.Logger
}

// NewChallengeHandler serves challenge submissions.
func NewChallengeHandler(challenges *service.ChallengeService, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges, logger: logger}
}

type submitRequest struct {
	Source string `json:"source"`
}

// HandleSubmit serves POST /api/challenges/{id}/submit.
//
// A failing submission is still a 200: the per-test results are the answer.
// Only a grader that cannot run at all turns into an error status.
func (h *ChallengeHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.challenges.Submit(r.Context(), id, chi.URLParam(r, "id"), req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
