package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/model"
)

type projectBody struct {
	ID        string                       `json:"id"`
	LearnerID string                       `json:"learnerId"`
	Name      string                       `json:"name"`
	Files     map[string]map[string]string `json:"files"`
	Libraries []string                     `json:"libraries"`
}

func newProjectBody() map[string]any {
	return map[string]any{
		"name": "Demo",
		"files": map[string]any{
			"index.html": map[string]string{"content": "<p>hi</p>", "language": "html"},
			"app.js":     map[string]string{"content": "console.log(1)", "language": "javascript"},
		},
		"libraries": []string{"jquery"},
	}
}

func TestProject_CRUD(t *testing.T) {
	e := newEnv(t)
	c := e.cookie(t, anon("learner-a"))

	rec := e.do(t, http.MethodPost, "/api/projects", newProjectBody(), c)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[projectBody](t, rec)
	assert.Equal(t, "learner-a", created.LearnerID)
	assert.Equal(t, []string{"jquery"}, created.Libraries)

	rec = e.do(t, http.MethodGet, "/api/projects/"+created.ID, nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>hi</p>", decode[projectBody](t, rec).Files["index.html"]["content"])

	rec = e.do(t, http.MethodPut, "/api/projects/"+created.ID, map[string]string{"name": "Renamed"}, c)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[projectBody](t, rec)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Contains(t, updated.Files, "app.js", "omitted fields are kept")

	rec = e.do(t, http.MethodGet, "/api/projects", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]projectBody](t, rec), 1)

	rec = e.do(t, http.MethodDelete, "/api/projects/"+created.ID, nil, c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/projects/"+created.ID, nil, c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProject_OtherLearnersProjectsAreHidden(t *testing.T) {
	e := newEnv(t)
	owner := e.cookie(t, anon("learner-a"))
	other := e.cookie(t, anon("learner-b"))

	created := decode[projectBody](t, e.do(t, http.MethodPost, "/api/projects", newProjectBody(), owner))

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/projects/" + created.ID, nil},
		{http.MethodPut, "/api/projects/" + created.ID, map[string]string{"name": "mine now"}},
		{http.MethodDelete, "/api/projects/" + created.ID, nil},
		{http.MethodGet, "/api/projects/" + created.ID + "/export", nil},
	} {
		rec := e.do(t, tc.method, tc.path, tc.body, other)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method+" "+tc.path)
	}

	rec := e.do(t, http.MethodGet, "/api/projects", nil, other)
	assert.Empty(t, decode[[]projectBody](t, rec))
}

func TestProject_ListPaging(t *testing.T) {
	e := newEnv(t)
	c := e.cookie(t, anon("learner-a"))

	for _, name := range []string{"one", "two", "three"} {
		body := newProjectBody()
		body["name"] = name
		rec := e.do(t, http.MethodPost, "/api/projects", body, c)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := e.do(t, http.MethodGet, "/api/projects?limit=2", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]projectBody](t, rec), 2)

	rec = e.do(t, http.MethodGet, "/api/projects?limit=2&offset=2", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]projectBody](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/api/projects?limit=-1", nil, c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", decode[ErrorResponse](t, rec).Field)
}

func TestProject_Validation(t *testing.T) {
	e := newEnv(t)
	c := e.cookie(t, anon("learner-a"))

	rec := e.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "no files"}, c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "files", decode[ErrorResponse](t, rec).Field)
}

func TestProject_ExportImport(t *testing.T) {
	e := newEnv(t)
	c := e.cookie(t, anon("learner-a"))
	created := decode[projectBody](t, e.do(t, http.MethodPost, "/api/projects", newProjectBody(), c))

	rec := e.do(t, http.MethodGet, "/api/projects/"+created.ID+"/export", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="Demo.json"`, rec.Header().Get("Content-Disposition"))
	exp := decode[model.ProjectExport](t, rec)
	assert.Equal(t, "Demo", exp.Name)
	assert.Equal(t, []string{"jquery"}, exp.Libraries)

	file := rec.Body.String()

	rec = e.do(t, http.MethodPost, "/api/projects/import", file, c)
	assert.Equal(t, http.StatusConflict, rec.Code, "names are unique per learner")

	rec = e.do(t, http.MethodPost, "/api/projects/import", file, e.cookie(t, anon("learner-b")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	imported := decode[projectBody](t, rec)
	assert.NotEqual(t, created.ID, imported.ID)
	assert.Equal(t, "learner-b", imported.LearnerID)
	assert.Contains(t, imported.Files, "app.js")

	rec = e.do(t, http.MethodPost, "/api/projects/import", `{"name":"empty"}`, c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
