package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/catalog"
	"github.com/sakif/js-playground/internal/metrics"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/sandbox"
	"github.com/sakif/js-playground/internal/service"
	"github.com/sakif/js-playground/internal/workspace"
)

// DefaultTemplate seeds a workspace created without a template or project.
const DefaultTemplate = "blank"

// WorkspaceHandler serves the live editing API and the sandbox documents.
type WorkspaceHandler struct {
	hub      *workspace.Hub
	catalog  *catalog.Catalog
	projects *service.ProjectService
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewWorkspaceHandler serves /api/workspaces and the sandbox documents.
func NewWorkspaceHandler(hub *workspace.Hub, cat *catalog.Catalog, projects *service.ProjectService, m *metrics.Metrics, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{hub: hub, catalog: cat, projects: projects, metrics: m, logger: logger}
}

// Routes mounts the workspace API under /api/workspaces.
func (h *WorkspaceHandler) Routes(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Delete("/", h.HandleClose)
		r.Put("/files/{name}", h.HandlePutFile)
		r.Delete("/files/{name}", h.HandleDeleteFile)
		r.Post("/files/{name}/rename", h.HandleRenameFile)
		r.Post("/template", h.HandleLoadTemplate)
		r.Put("/libraries", h.HandleSetLibraries)
		r.Patch("/preferences", h.HandleSetPreferences)
		r.Post("/run", h.HandleRun)
		r.Get("/console", h.HandleConsole)
		r.Post("/console", h.HandleRelay)
		r.Delete("/console", h.HandleClearConsole)
		r.Get("/standalone", h.HandleStandalone)
		r.Get("/export", h.HandleExport)
		r.Post("/import", h.HandleImport)
		r.Post("/save", h.HandleSave)
		r.Get("/socket", h.HandleSocket)
	})
}

func (h *WorkspaceHandler) workspace(r *http.Request) (*workspace.Workspace, error) {
	return h.hub.Get(chi.URLParam(r, "id"))
}

type createWorkspaceRequest struct {
	Template  string `json:"template"`
	ProjectID string `json:"projectId"`
}

// HandleCreate serves POST /api/workspaces. The body is optional.
func (h *WorkspaceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	var (
		files     *model.FileSet
		libraries []string
	)
	switch {
	case req.ProjectID != "":
		id, err := learnerID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		project, err := h.projects.Get(r.Context(), id, req.ProjectID)
		if err != nil {
			writeError(w, err)
			return
		}
		files, libraries = project.Files, project.Libraries
	case req.Template != "":
		tmpl, err := h.catalog.Template(req.Template)
		if err != nil {
			writeError(w, err)
			return
		}
		files = tmpl.Files
	default:
		if tmpl, err := h.catalog.Template(DefaultTemplate); err == nil {
			files = tmpl.Files
		}
	}

	ws, err := h.hub.Create(files)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(libraries) > 0 {
		if err := ws.SetLibraries(libraries); err != nil {
			writeError(w, err)
			return
		}
		if _, err := ws.Run(); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, ws.State())
}

// HandleGet serves GET /api/workspaces/{id}.
func (h *WorkspaceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.State())
}

// HandleClose serves DELETE /api/workspaces/{id}.
func (h *WorkspaceHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type putFileRequest struct {
	Content  string         `json:"content"`
	Language model.Language `json:"language"`
}

// HandlePutFile serves PUT /api/workspaces/{id}/files/{name}.
func (h *WorkspaceHandler) HandlePutFile(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req putFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := ws.PutFile(chi.URLParam(r, "name"), req.Content, req.Language); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteFile serves DELETE /api/workspaces/{id}/files/{name}.
func (h *WorkspaceHandler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ws.DeleteFile(chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRenameFile serves POST /api/workspaces/{id}/files/{name}/rename.
func (h *WorkspaceHandler) HandleRenameFile(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		To string `json:"to"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := ws.RenameFile(chi.URLParam(r, "name"), req.To); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLoadTemplate serves POST /api/workspaces/{id}/template. The
// template replaces every file.
func (h *WorkspaceHandler) HandleLoadTemplate(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	tmpl, err := h.catalog.Template(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ws.Replace(tmpl.Files, nil); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.State())
}

// HandleSetLibraries serves PUT /api/workspaces/{id}/libraries.
func (h *WorkspaceHandler) HandleSetLibraries(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Libraries []string `json:"libraries"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := ws.SetLibraries(req.Libraries); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"libraries": ws.Libraries()})
}

// HandleSetPreferences serves PATCH /api/workspaces/{id}/preferences.
func (h *WorkspaceHandler) HandleSetPreferences(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req workspace.Preferences
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := ws.SetPreferences(req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.State())
}

// HandleRun serves POST /api/workspaces/{id}/run.
func (h *WorkspaceHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := ws.Run()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"problems": ws.Problems(),
	})
}

// HandleConsole serves GET /api/workspaces/{id}/console.
func (h *WorkspaceHandler) HandleConsole(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Console())
}

// HandleRelay serves POST /api/workspaces/{id}/console, the fallback for
// browsers without a socket. Rejected frames get the same 202 as accepted
// ones.
func (h *WorkspaceHandler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	frame, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	ws.Receive(frame)
	w.WriteHeader(http.StatusAccepted)
}

// HandleClearConsole serves DELETE /api/workspaces/{id}/console.
func (h *WorkspaceHandler) HandleClearConsole(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ws.ClearConsole()
	w.WriteHeader(http.StatusNoContent)
}

// HandleStandalone serves GET /api/workspaces/{id}/standalone as a download.
func (h *WorkspaceHandler) HandleStandalone(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	html, err := ws.Standalone()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="index.html"`)
	_, _ = w.Write([]byte(html))
}

// HandleExport serves GET /api/workspaces/{id}/export?name=... as a
// project file download.
func (h *WorkspaceHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	exp := h.projects.ExportFiles(r.URL.Query().Get("name"), ws.Files(), ws.Libraries())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName(exp.Name)))
	writeJSON(w, http.StatusOK, exp)
}

// HandleImport serves POST /api/workspaces/{id}/import. The body is a
// project file; its files replace the workspace's.
func (h *WorkspaceHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	exp, err := service.ParseExport(data)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ws.Replace(exp.Files, exp.Libraries); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.State())
}

// HandleSave serves POST /api/workspaces/{id}/save, storing the current
// files as a new project.
func (h *WorkspaceHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := learnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	project, err := h.projects.Save(r.Context(), id, req.Name, ws.Files(), ws.Libraries())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// HandleSandbox serves GET /sandbox/{id}/{gen}, the document the preview
// iframe loads. A replaced generation is gone for good.
func (h *WorkspaceHandler) HandleSandbox(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	gen, err := strconv.ParseUint(chi.URLParam(r, "gen"), 10, 64)
	if err != nil {
		writeError(w, apperror.ValidationFailed("gen", "generation must be a number"))
		return
	}
	doc, err := ws.Document(gen)
	if err != nil {
		status := http.StatusGone
		if errors.Is(err, sandbox.ErrEmpty) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	sandbox.SetHeaders(w.Header())
	_, _ = w.Write([]byte(doc.HTML))
}

func exportFileName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "project.json"
	}
	return string(out) + ".json"
}
