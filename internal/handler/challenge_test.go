package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/service"
)

func TestChallenge_SubmitPassingMarksCompleted(t *testing.T) {
	e := newEnv(t)
	c := e.cookie(t, anon("learner-a"))

	rec := e.do(t, http.MethodPost, "/api/challenges/sum/submit",
		map[string]string{"source": "function sum(a, b) { return a + b; }"}, c)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.SubmitResult](t, rec)
	assert.True(t, res.Passed)
	assert.True(t, res.NewlyCompleted)
	assert.Len(t, res.Results, 3)

	p, err := e.progress.Get(t.Context(), "learner-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"sum"}, p.CompletedChallenges)

	rec = e.do(t, http.MethodPost, "/api/challenges/sum/submit",
		map[string]string{"source": "function sum(a, b) { return b + a; }"}, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[service.SubmitResult](t, rec).NewlyCompleted)
}

func TestChallenge_SubmitFailingIsStillOK(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/challenges/sum/submit",
		map[string]string{"source": "function sum(a, b) { return a - b; }"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.SubmitResult](t, rec)
	assert.False(t, res.Passed)
	assert.False(t, res.NewlyCompleted)
}

func TestChallenge_SubmitErrors(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/challenges/nope/submit", map[string]string{"source": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	long := strings.Repeat("a", service.MaxSourceLength+1)
	rec = e.do(t, http.MethodPost, "/api/challenges/sum/submit", map[string]string{"source": long})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "source", decode[ErrorResponse](t, rec).Field)

	rec = e.do(t, http.MethodPost, "/api/challenges/sum/submit", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
