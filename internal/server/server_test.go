package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/auth"
	"github.com/sakif/js-playground/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:        8080,
			TemplateDir: "../../web/templates",
			StaticDir:   "../../web/static",
		},
		Storage: config.StorageConfig{DBPath: ":memory:", Backend: "sqlite"},
		Preview: config.PreviewConfig{
			Debounce:    time.Second,
			AutoRun:     true,
			ConsoleCap:  100,
			BridgeRate:  100,
			BridgeBurst: 100,
		},
		Grader:    config.GraderConfig{Engine: "goja", Timeout: time.Second},
		Logging:   config.LogConfig{Level: "info"},
		Workspace: config.WorkspaceConfig{IdleTTL: time.Minute, MaxWorkspaces: 5},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sandbox="allow-scripts allow-modals allow-forms"`)
	assert.NotContains(t, rec.Body.String(), "/auth/github/login", "sign-in is hidden without OAuth settings")

	rec = get(t, s, "/static/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/api/catalog/templates")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/auth/github/login")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "playground_http_requests_total")
}

func TestServer_AnonymousSessionSurvivesAcrossRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "a-fixed-secret-for-tests-only"
	s := newTestServer(t, cfg)

	rec := get(t, s, "/api/me")
	require.Equal(t, http.StatusOK, rec.Code)
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(session)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Empty(t, rec2.Result().Cookies(), "a valid session is not reissued")
	assert.Equal(t, rec.Body.String(), rec2.Body.String())
}

func TestServer_GitHubRoutesWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.GitHubClientID = "client"
	cfg.Auth.GitHubClientSecret = "secret"
	cfg.Auth.GitHubCallbackURL = "http://localhost:8080/auth/github/callback"
	s := newTestServer(t, cfg)

	rec := get(t, s, "/auth/github/login")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://github.com/login/oauth/authorize"))
}

func TestServer_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Storage.Backend = "redis"
	cfg.Storage.RedisAddr = mr.Addr()
	s := newTestServer(t, cfg)

	// Setting the theme lands in Redis under the learner's namespace.
	req := httptest.NewRequest(http.MethodPut, "/api/progress/theme", strings.NewReader(`{"theme":"light"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasSuffix(keys[0], ":theme"), keys[0])
}

func TestServer_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "redis"
	cfg.Storage.RedisAddr = "127.0.0.1:1"

	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "connecting to redis")
}

func TestServer_CatalogOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CatalogPath = "does-not-exist.yaml"

	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "loading catalog")
}

func TestServer_RejectsSandboxOrigin(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/workspaces", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := `{"name":"x","files":{"index.html":{"name":"index.html","content":"owned by sandbox"}}}`
	req = httptest.NewRequest(http.MethodPost, "/api/workspaces/"+created.ID+"/import", strings.NewReader(body))
	req.Header.Set("Origin", "null")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(t, s, "/api/workspaces/"+created.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "owned by sandbox")
}
