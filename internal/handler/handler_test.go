package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/assembler"
	"github.com/sakif/js-playground/internal/auth"
	"github.com/sakif/js-playground/internal/catalog"
	"github.com/sakif/js-playground/internal/executor/jsvm"
	"github.com/sakif/js-playground/internal/grader"
	"github.com/sakif/js-playground/internal/metrics"
	"github.com/sakif/js-playground/internal/middleware"
	"github.com/sakif/js-playground/internal/repository/sqlite"
	"github.com/sakif/js-playground/internal/service"
	"github.com/sakif/js-playground/internal/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGitHub stands in for the OAuth provider.
type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (f *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	if code != "good-code" {
		return nil, errors.New("bad code")
	}
	return f.user, nil
}

type env struct {
	router   chi.Router
	hub      *workspace.Hub
	tokens   *auth.TokenService
	db       *sqlite.DB
	progress *service.ProgressService
	projects *service.ProjectService
	github   *fakeGitHub
}

func writeTemplates(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	base := `{{define "base"}}<title>{{.Title}}</title><main>{{template "content" .}}</main>{{end}}`
	page := `{{define "content"}}<iframe sandbox="{{.SandboxPermissions}}"></iframe>` +
		`{{range .Templates}}<option>{{.ID}}</option>{{end}}` +
		`{{if .GitHubEnabled}}<a href="/auth/github/login">Sign in</a>{{end}}{{end}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.html"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playground.html"), []byte(page), 0o644))
	return dir
}

// newEnv wires real services over an in-memory database, routed the same
// way the server routes them. Auto-run is off so previews only change on
// explicit runs.
func newEnv(t *testing.T) *env {
	t.Helper()
	logger := testLogger()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat, err := catalog.Default()
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)

	m := metrics.New()
	hub := workspace.NewHub(workspace.Settings{
		Debounce:   time.Hour,
		AutoRun:    false,
		ConsoleCap: 50,
	}, workspace.Limits{IdleTTL: time.Hour, Max: 10}, assembler.New(), m, logger)
	t.Cleanup(hub.CloseAll)

	progress := service.NewProgressService(db.KV(), cat, logger)
	projects := service.NewProjectService(db, logger)
	challenges := service.NewChallengeService(cat, grader.New(jsvm.New(jsvm.DefaultConfig()), logger, m), progress, logger)
	authService := service.NewAuthService(db, db, progress, tokens, logger)

	gh := &fakeGitHub{user: &auth.GitHubUser{ID: 42, Login: "octo", Email: "octo@example.com"}}

	playground, err := NewPlaygroundHandler(writeTemplates(t), cat, true, logger)
	require.NoError(t, err)
	wsHandler := NewWorkspaceHandler(hub, cat, projects, m, logger)
	authHandler := NewAuthHandler(gh, authService, logger)

	r := chi.NewRouter()
	r.Get("/sandbox/{id}/{gen}", wsHandler.HandleSandbox)
	r.Group(func(r chi.Router) {
		r.Use(auth.Learner(tokens, logger))
		r.Get("/", playground.HandlePlayground)
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.SameOrigin(logger))
			r.Get("/me", authHandler.HandleMe)
			r.Route("/workspaces", wsHandler.Routes)
			r.Route("/catalog", NewCatalogHandler(cat, logger).Routes)
			r.Post("/challenges/{id}/submit", NewChallengeHandler(challenges, logger).HandleSubmit)
			r.Route("/progress", NewProgressHandler(progress, logger).Routes)
			r.Route("/projects", NewProjectHandler(projects, logger).Routes)
		})
		r.Route("/auth", func(r chi.Router) {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
			r.With(middleware.SameOrigin(logger), auth.RequireSignedIn).Post("/logout", authHandler.HandleLogout)
		})
	})

	return &env{
		router:   r,
		hub:      hub,
		tokens:   tokens,
		db:       db,
		progress: progress,
		projects: projects,
		github:   gh,
	}
}

// cookie returns a session cookie for the given identity.
func (e *env) cookie(t *testing.T, id auth.Identity) *http.Cookie {
	t.Helper()
	tok, err := e.tokens.Issue(id)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: tok}
}

func anon(id string) auth.Identity { return auth.Identity{LearnerID: id, Anonymous: true} }

// do sends a request through the router. body may be nil, a string, or a
// value to encode as JSON.
func (e *env) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type stateBody struct {
	ID       string                       `json:"id"`
	Files    map[string]map[string]string `json:"files"`
	Options  struct{ Libraries []string } `json:"options"`
	AutoRun  bool                         `json:"autoRun"`
	Document *struct{ Generation uint64 } `json:"document"`
	Problems []string                     `json:"problems"`
}

func (e *env) createWorkspace(t *testing.T, body any) stateBody {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/workspaces", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[stateBody](t, rec)
}
