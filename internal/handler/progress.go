package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js-playground/internal/service"
)

// ProgressHandler exposes the learner's persisted preferences and
// completions.
type ProgressHandler struct {
	progress *service.ProgressService
	logger   *slog.Logger
}

// NewProgressHandler serves /api/progress.
func NewProgressHandler(progress *service.ProgressService, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, logger: logger}
}

// Routes mounts the progress API under /api/progress.
func (h *ProgressHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleGet)
	r.Put("/theme", h.HandleSetTheme)
	r.Post("/warning-seen", h.HandleWarningSeen)
	r.Post("/lessons/{id}/complete", h.HandleCompleteLesson)
}

// HandleGet serves GET /api/progress.
func (h *ProgressHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.progress.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleSetTheme serves PUT /api/progress/theme with {"theme": "light"}.
func (h *ProgressHandler) HandleSetTheme(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Theme string `json:"theme"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.progress.SetTheme(r.Context(), id, req.Theme); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWarningSeen serves POST /api/progress/warning-seen. The editor
// stops showing the first-run sandbox notice once this is set.
func (h *ProgressHandler) HandleWarningSeen(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.progress.MarkWarningSeen(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCompleteLesson serves POST /api/progress/lessons/{id}/complete.
func (h *ProgressHandler) HandleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	added, err := h.progress.CompleteLesson(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"newlyCompleted": added})
}
