package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js-playground/internal/catalog"
	"github.com/sakif/js-playground/internal/instrument"
	"github.com/sakif/js-playground/internal/model"
)

// CatalogHandler serves the read-only learning content.
type CatalogHandler struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewCatalogHandler serves the read-only /api/catalog routes.
func NewCatalogHandler(cat *catalog.Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: cat, logger: logger}
}

// Routes mounts the catalog under /api/catalog.
func (h *CatalogHandler) Routes(r chi.Router) {
	r.Get("/lessons", h.HandleLessons)
	r.Get("/lessons/{id}", h.HandleLesson)
	r.Get("/challenges", h.HandleChallenges)
	r.Get("/challenges/{id}", h.HandleChallenge)
	r.Get("/templates", h.HandleTemplates)
	r.Get("/templates/{id}", h.HandleTemplate)
	r.Get("/libraries", h.HandleLibraries)
}

// lessonSummary is a lesson without its body, for the lesson list.
type lessonSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type challengeSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
	Tests      int    `json:"tests"`
}

type templateSummary struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// HandleLessons serves GET /api/catalog/lessons.
func (h *CatalogHandler) HandleLessons(w http.ResponseWriter, r *http.Request) {
	lessons := h.catalog.Lessons()
	out := make([]lessonSummary, len(lessons))
	for i, l := range lessons {
		out[i] = lessonSummary{ID: l.ID, Title: l.Title, Summary: l.Summary}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleLesson serves GET /api/catalog/lessons/{id}.
func (h *CatalogHandler) HandleLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := h.catalog.Lesson(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

// HandleChallenges serves GET /api/catalog/challenges.
func (h *CatalogHandler) HandleChallenges(w http.ResponseWriter, r *http.Request) {
	challenges := h.catalog.Challenges()
	out := make([]challengeSummary, len(challenges))
	for i, ch := range challenges {
		out[i] = challengeSummary{ID: ch.ID, Title: ch.Title, Difficulty: ch.Difficulty, Tests: len(ch.Tests)}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleChallenge serves GET /api/catalog/challenges/{id}, test cases
// included so the editor can show what will be checked.
func (h *CatalogHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := h.catalog.Challenge(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// HandleTemplates serves GET /api/catalog/templates.
func (h *CatalogHandler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.catalog.Templates()
	out := make([]templateSummary, len(templates))
	for i, t := range templates {
		out[i] = templateSummary{ID: t.ID, Name: t.Name, Files: fileNames(t.Files)}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleTemplate serves GET /api/catalog/templates/{id}.
func (h *CatalogHandler) HandleTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.catalog.Template(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// HandleLibraries serves GET /api/catalog/libraries.
func (h *CatalogHandler) HandleLibraries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, instrument.Registry)
}

func fileNames(fs *model.FileSet) []string {
	files := fs.Files()
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}
