package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/model"
)

func TestWorkspace_CreateDefaultsToBlankTemplate(t *testing.T) {
	e := newEnv(t)

	st := e.createWorkspace(t, nil)

	assert.NotEmpty(t, st.ID)
	assert.Contains(t, st.Files, "index.html")
	assert.Contains(t, st.Files, "script.js")
	require.NotNil(t, st.Document)
	assert.Equal(t, uint64(1), st.Document.Generation)
	assert.False(t, st.AutoRun)
}

func TestWorkspace_CreateFromTemplateAndUnknownTemplate(t *testing.T) {
	e := newEnv(t)

	st := e.createWorkspace(t, map[string]string{"template": "counter"})
	assert.Contains(t, st.Files, "counter.js")

	rec := e.do(t, http.MethodPost, "/api/workspaces", map[string]string{"template": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Error)
}

func TestWorkspace_CreateFromProject(t *testing.T) {
	e := newEnv(t)
	c := e.cookie(t, anon("learner-a"))

	files := model.NewFileSet(model.VirtualFile{Name: "index.html", Content: "<p>saved</p>"})
	p, err := e.projects.Save(t.Context(), "learner-a", "Saved", files, []string{"lodash"})
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/api/workspaces", map[string]string{"projectId": p.ID}, c)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	st := decode[stateBody](t, rec)
	assert.Equal(t, "<p>saved</p>", st.Files["index.html"]["content"])
	assert.Equal(t, []string{"lodash"}, st.Options.Libraries)

	// Another learner cannot open it.
	other := e.cookie(t, anon("learner-b"))
	rec = e.do(t, http.MethodPost, "/api/workspaces", map[string]string{"projectId": p.ID}, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkspace_UnknownID(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/workspaces/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestWorkspace_FileLifecycle(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)
	base := "/api/workspaces/" + st.ID

	rec := e.do(t, http.MethodPut, base+"/files/extra.js", map[string]string{"content": "let x = 1"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, base+"/files/extra.js/rename", map[string]string{"to": "main.js"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, base+"/files/missing.js/rename", map[string]string{"to": "x.js"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, base+"/files/main.js/rename", map[string]string{"to": "style.css"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	got := decode[stateBody](t, e.do(t, http.MethodGet, base, nil))
	assert.Equal(t, "let x = 1", got.Files["main.js"]["content"])
	assert.NotContains(t, got.Files, "extra.js")

	rec = e.do(t, http.MethodDelete, base+"/files/main.js", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	got = decode[stateBody](t, e.do(t, http.MethodGet, base, nil))
	assert.NotContains(t, got.Files, "main.js")
}

func TestWorkspace_PutFileValidation(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)

	rec := e.do(t, http.MethodPut, "/api/workspaces/"+st.ID+"/files/a.js", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "body", decode[ErrorResponse](t, rec).Field)

	rec = e.do(t, http.MethodPut, "/api/workspaces/"+st.ID+"/files/..", map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkspace_RunAndSandboxDocument(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)
	base := "/api/workspaces/" + st.ID

	rec := e.do(t, http.MethodGet, "/sandbox/"+st.ID+"/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "sandbox allow-scripts")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "<h1>Hello!</h1>")
	assert.Contains(t, rec.Body.String(), `console.log("Hello from script.js")`)

	rec = e.do(t, http.MethodPost, base+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[struct {
		Document struct{ Generation uint64 } `json:"document"`
	}](t, rec)
	assert.Equal(t, uint64(2), run.Document.Generation)

	rec = e.do(t, http.MethodGet, "/sandbox/"+st.ID+"/1", nil)
	assert.Equal(t, http.StatusGone, rec.Code, "replaced generations are gone")

	rec = e.do(t, http.MethodGet, "/sandbox/"+st.ID+"/2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/sandbox/"+st.ID+"/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/sandbox/unknown/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkspace_ConsoleRelay(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)
	base := "/api/workspaces/" + st.ID

	rec := e.do(t, http.MethodPost, base+"/console",
		`{"source":"sandbox","data":{"type":"console","method":"warn","args":["careful"]}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Junk gets the same answer and is not recorded.
	rec = e.do(t, http.MethodPost, base+"/console", `{"source":"elsewhere","data":{}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	entries := decode[[]model.ConsoleEvent](t, e.do(t, http.MethodGet, base+"/console", nil))
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0].Method)
	assert.Equal(t, []string{"careful"}, entries[0].Args)
	assert.Equal(t, uint64(1), entries[0].Generation)

	rec = e.do(t, http.MethodDelete, base+"/console", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	entries = decode[[]model.ConsoleEvent](t, e.do(t, http.MethodGet, base+"/console", nil))
	assert.Empty(t, entries)
}

func TestWorkspace_LibrariesAndPreferences(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)
	base := "/api/workspaces/" + st.ID

	rec := e.do(t, http.MethodPut, base+"/libraries", map[string][]string{"libraries": {"lodash", "not-a-lib"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"lodash"}, decode[map[string][]string](t, rec)["libraries"])

	rec = e.do(t, http.MethodPatch, base+"/preferences", map[string]bool{"autoRun": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[stateBody](t, rec).AutoRun)
}

func TestWorkspace_LoadTemplateReplacesFiles(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)

	rec := e.do(t, http.MethodPost, "/api/workspaces/"+st.ID+"/template", map[string]string{"id": "counter"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[stateBody](t, rec)
	assert.Contains(t, got.Files, "counter.js")
	assert.NotContains(t, got.Files, "script.js")
}

func TestWorkspace_StandaloneDownload(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)

	rec := e.do(t, http.MethodGet, "/api/workspaces/"+st.ID+"/standalone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="index.html"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "<h1>Hello!</h1>")
	assert.NotContains(t, rec.Body.String(), "postMessage")
}

func TestWorkspace_ExportImport(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)
	base := "/api/workspaces/" + st.ID

	rec := e.do(t, http.MethodGet, base+"/export?name=My%20Page!", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="My-Page.json"`, rec.Header().Get("Content-Disposition"))
	exp := decode[model.ProjectExport](t, rec)
	assert.Equal(t, "My Page!", exp.Name)
	assert.Equal(t, model.ProjectExportVersion, exp.Version)

	other := e.createWorkspace(t, map[string]string{"template": "counter"})
	rec = e.do(t, http.MethodPost, "/api/workspaces/"+other.ID+"/import", rec.Body.String())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[stateBody](t, rec)
	assert.Contains(t, got.Files, "script.js")
	assert.NotContains(t, got.Files, "counter.js")

	rec = e.do(t, http.MethodPost, base+"/import", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "files", decode[ErrorResponse](t, rec).Field)
}

func TestWorkspace_SaveAsProject(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)
	c := e.cookie(t, anon("learner-a"))

	rec := e.do(t, http.MethodPost, "/api/workspaces/"+st.ID+"/save", map[string]string{"name": "First"}, c)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	list, err := e.projects.List(t.Context(), "learner-a", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "First", list[0].Name)
}

func TestWorkspace_Close(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)

	rec := e.do(t, http.MethodDelete, "/api/workspaces/"+st.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/workspaces/"+st.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/sandbox/%s/1", st.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportFileName(t *testing.T) {
	tests := map[string]string{
		"My Project": "My-Project.json",
		"a/b\\c":     "abc.json",
		"":           "project.json",
		"???":        "project.json",
	}
	for in, want := range tests {
		assert.Equal(t, want, exportFileName(in), in)
	}
}

func TestWorkspace_PreviewCannotDriveAPI(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)
	base := "/api/workspaces/" + st.ID

	// What a fetch from the sandboxed iframe looks like: opaque origin and a
	// body type that needs no preflight.
	for _, path := range []string{"/import", "/run", "/template", "/console"} {
		req := httptest.NewRequest(http.MethodPost, base+path, strings.NewReader(`{"files":{}}`))
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("Origin", "null")
		req.Header.Set("Sec-Fetch-Site", "cross-site")
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}

	got := decode[stateBody](t, e.do(t, http.MethodGet, base, nil))
	require.NotNil(t, got.Document)
	assert.Equal(t, uint64(1), got.Document.Generation)
	assert.Equal(t, st.Files, got.Files)
}

func TestWorkspace_BodiesMustBeJSON(t *testing.T) {
	e := newEnv(t)
	st := e.createWorkspace(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/workspaces/"+st.ID+"/import",
		strings.NewReader(`{"name":"x","files":{}}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Content-Type", decode[ErrorResponse](t, rec).Field)

	req = httptest.NewRequest(http.MethodPut, "/api/workspaces/"+st.ID+"/files/a.js",
		strings.NewReader(`{"content":"1"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}
