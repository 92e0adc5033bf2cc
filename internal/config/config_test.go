package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, time.Second, cfg.Preview.Debounce)
	assert.Equal(t, 1000, cfg.Preview.ConsoleCap)
	assert.True(t, cfg.Preview.AutoRun)
	assert.Equal(t, "goja", cfg.Grader.Engine)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.Auth.GitHubCallbackURL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DEBOUNCE", "250ms")
	t.Setenv("CONSOLE_CAP", "50")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Preview.Debounce)
	assert.Equal(t, 50, cfg.Preview.ConsoleCap)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad backend", "STORE_BACKEND", "postgres"},
		{"bad engine", "GRADER_ENGINE", "v8"},
		{"zero debounce", "DEBOUNCE", "0s"},
		{"bad port", "PORT", "70000"},
		{"bad level", "LOG_LEVEL", "loud"},
		{"not a number", "CONSOLE_CAP", "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
