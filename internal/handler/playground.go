package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/sakif/js-playground/internal/catalog"
	"github.com/sakif/js-playground/internal/instrument"
	"github.com/sakif/js-playground/internal/sandbox"
)

// PlaygroundHandler renders the editor shell.
type PlaygroundHandler struct {
	templates     *template.Template
	catalog       *catalog.Catalog
	githubEnabled bool
	logger        *slog.Logger
}

// NewPlaygroundHandler parses base.html and playground.html from templateDir.
func NewPlaygroundHandler(templateDir string, cat *catalog.Catalog, githubEnabled bool, logger *slog.Logger) (*PlaygroundHandler, error) {
	tmpl, err := template.ParseFiles(
		filepath.Join(templateDir, "base.html"),
		filepath.Join(templateDir, "playground.html"),
	)
	if err != nil {
		return nil, err
	}

	return &PlaygroundHandler{
		templates:     tmpl,
		catalog:       cat,
		githubEnabled: githubEnabled,
		logger:        logger,
	}, nil
}

// HandlePlayground serves GET /.
func (h *PlaygroundHandler) HandlePlayground(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":              "JS Playground",
		"SandboxPermissions": sandbox.Permissions,
		"Templates":          h.catalog.Templates(),
		"Libraries":          instrument.Registry,
		"GitHubEnabled":      h.githubEnabled,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
