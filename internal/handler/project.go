package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/service"
)

// ProjectHandler manages a learner's saved projects.
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

// NewProjectHandler serves /api/projects.
func NewProjectHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// Routes mounts the project API under /api/projects.
func (h *ProjectHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Post("/import", h.HandleImport)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	r.Get("/{id}/export", h.HandleExport)
}

type createProjectRequest struct {
	Name      string         `json:"name"`
	Files     *model.FileSet `json:"files"`
	Libraries []string       `json:"libraries"`
}

type updateProjectRequest struct {
	Name      *string        `json:"name"`
	Files     *model.FileSet `json:"files"`
	Libraries []string       `json:"libraries"`
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}

// HandleList serves GET /api/projects?limit=20&offset=0.
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	projects, err := h.projects.List(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// HandleCreate serves POST /api/projects.
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	project, err := h.projects.Save(r.Context(), id, req.Name, req.Files, req.Libraries)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// HandleGet serves GET /api/projects/{id}.
func (h *ProjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	project, err := h.projects.Get(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleUpdate serves PUT /api/projects/{id}. Omitted fields keep their
// stored values.
func (h *ProjectHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	project, err := h.projects.Update(r.Context(), id, chi.URLParam(r, "id"), service.ProjectUpdate{
		Name:      req.Name,
		Files:     req.Files,
		Libraries: req.Libraries,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleDelete serves DELETE /api/projects/{id}.
func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.projects.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExport serves GET /api/projects/{id}/export as a download.
func (h *ProjectHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	exp, err := h.projects.Export(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName(exp.Name)))
	writeJSON(w, http.StatusOK, exp)
}

// HandleImport serves POST /api/projects/import. The body is a project
// file as produced by export.
func (h *ProjectHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	project, err := h.projects.Import(r.Context(), id, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}
