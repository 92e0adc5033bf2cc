package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
)

func TestUpsert_CreatesThenUpdates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.Learner{GitHubID: 42, Login: "octo", Email: "o@example.com"}
	require.NoError(t, db.Upsert(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &model.Learner{GitHubID: 42, Login: "octocat", AvatarURL: "https://avatars/1"}
	require.NoError(t, db.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := db.GetLearnerByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "octocat", got.Login)
	assert.Equal(t, int64(42), got.GitHubID)
	assert.Equal(t, "https://avatars/1", got.AvatarURL)
}

func TestGetLearnerByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetLearnerByID(context.Background(), "nobody")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
