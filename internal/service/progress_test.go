package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/apperror"
)

func newTestProgress(t *testing.T) *ProgressService {
	t.Helper()
	return NewProgressService(newTestDB(t).KV(), testCatalog(t), testLogger())
}

func TestProgress_Defaults(t *testing.T) {
	svc := newTestProgress(t)

	p, err := svc.Get(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Equal(t, &Progress{
		Theme:               ThemeDark,
		CompletedChallenges: []string{},
		CompletedLessons:    []string{},
	}, p)
}

func TestProgress_Theme(t *testing.T) {
	svc := newTestProgress(t)
	ctx := context.Background()

	require.NoError(t, svc.SetTheme(ctx, "learner-1", ThemeLight))
	p, err := svc.Get(ctx, "learner-1")
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, p.Theme)

	err = svc.SetTheme(ctx, "learner-1", "neon")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestProgress_WarningSeen(t *testing.T) {
	svc := newTestProgress(t)
	ctx := context.Background()

	require.NoError(t, svc.MarkWarningSeen(ctx, "learner-1"))
	p, err := svc.Get(ctx, "learner-1")
	require.NoError(t, err)
	assert.True(t, p.WarningSeen)

	other, err := svc.Get(ctx, "learner-2")
	require.NoError(t, err)
	assert.False(t, other.WarningSeen, "flags are per learner")
}

func TestProgress_CompleteIsIdempotent(t *testing.T) {
	svc := newTestProgress(t)
	ctx := context.Background()

	added, err := svc.CompleteChallenge(ctx, "learner-1", "sum")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.CompleteChallenge(ctx, "learner-1", "sum")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = svc.CompleteChallenge(ctx, "learner-1", "fizzbuzz")
	require.NoError(t, err)
	_, err = svc.CompleteLesson(ctx, "learner-1", "variables")
	require.NoError(t, err)

	p, err := svc.Get(ctx, "learner-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sum", "fizzbuzz"}, p.CompletedChallenges)
	assert.Equal(t, []string{"variables"}, p.CompletedLessons)
}

func TestProgress_CompleteUnknownID(t *testing.T) {
	svc := newTestProgress(t)
	ctx := context.Background()

	_, err := svc.CompleteChallenge(ctx, "learner-1", "no-such-challenge")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.CompleteLesson(ctx, "learner-1", "no-such-lesson")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestProgress_CorruptValueReadsEmpty(t *testing.T) {
	db := newTestDB(t)
	svc := NewProgressService(db.KV(), testCatalog(t), testLogger())
	ctx := context.Background()

	require.NoError(t, db.KV().Set(ctx, learnerKey("learner-1", KeyCompletedChallenges), "{not json"))
	p, err := svc.Get(ctx, "learner-1")
	require.NoError(t, err)
	assert.Empty(t, p.CompletedChallenges)

	added, err := svc.CompleteChallenge(ctx, "learner-1", "sum")
	require.NoError(t, err)
	assert.True(t, added)
}

func TestProgress_Merge(t *testing.T) {
	db := newTestDB(t)
	svc := NewProgressService(db.KV(), testCatalog(t), testLogger())
	ctx := context.Background()

	// Anonymous learner.
	_, _ = svc.CompleteChallenge(ctx, "anon", "sum")
	_, _ = svc.CompleteChallenge(ctx, "anon", "flatten")
	_, _ = svc.CompleteLesson(ctx, "anon", "arrays")
	require.NoError(t, svc.SetTheme(ctx, "anon", ThemeLight))
	require.NoError(t, svc.MarkWarningSeen(ctx, "anon"))

	// Account with its own history and theme.
	_, _ = svc.CompleteChallenge(ctx, "account", "sum")
	_, _ = svc.CompleteChallenge(ctx, "account", "fizzbuzz")
	require.NoError(t, svc.SetTheme(ctx, "account", ThemeDark))

	require.NoError(t, svc.Merge(ctx, "anon", "account"))

	p, err := svc.Get(ctx, "account")
	require.NoError(t, err)
	assert.Equal(t, []string{"sum", "fizzbuzz", "flatten"}, p.CompletedChallenges)
	assert.Equal(t, []string{"arrays"}, p.CompletedLessons)
	assert.Equal(t, ThemeDark, p.Theme, "the account's own theme wins")
	assert.True(t, p.WarningSeen)

	// The anonymous namespace is emptied.
	for _, key := range []string{KeyTheme, KeyWarningSeen, KeyCompletedChallenges, KeyCompletedLessons} {
		_, ok, err := db.KV().Get(ctx, learnerKey("anon", key))
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestProgress_MergeAdoptsThemeWhenUnset(t *testing.T) {
	svc := newTestProgress(t)
	ctx := context.Background()

	require.NoError(t, svc.SetTheme(ctx, "anon", ThemeLight))
	require.NoError(t, svc.Merge(ctx, "anon", "account"))

	p, err := svc.Get(ctx, "account")
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, p.Theme)
}

func TestProgress_StoreErrors(t *testing.T) {
	svc := NewProgressService(failingStore{err: errStoreDown}, testCatalog(t), testLogger())
	ctx := context.Background()

	_, err := svc.Get(ctx, "learner-1")
	assert.ErrorIs(t, err, errStoreDown)
	assert.ErrorIs(t, svc.SetTheme(ctx, "learner-1", ThemeDark), errStoreDown)
	_, err = svc.CompleteChallenge(ctx, "learner-1", "sum")
	assert.ErrorIs(t, err, errStoreDown)
}
