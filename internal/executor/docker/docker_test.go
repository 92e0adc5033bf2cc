package docker_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/docker"
)

func TestDockerExecutor(t *testing.T) {
	// Needs a local docker daemon.
	if os.Getenv("CI") != "" || testing.Short() {
		t.Skip("Skipping docker test in CI environment")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := docker.DefaultConfig()
	cfg.PoolSize = 1
	cfg.CallTimeout = time.Second

	exec, err := docker.New(cfg, logger)
	require.NoError(t, err, "Should initialize docker executor without error")
	defer exec.Close()

	t.Run("passing calls", func(t *testing.T) {
		out, err := exec.Execute(context.Background(), executor.Submission{
			Source: "function sum(a, b) { return a + b; }",
			Entry:  "sum",
			Inputs: []json.RawMessage{json.RawMessage("[1,2]"), json.RawMessage("[[1],[2]]")},
		})
		require.NoError(t, err)
		assert.Empty(t, out.CompileError)
		require.Len(t, out.Calls, 2)
		assert.JSONEq(t, "3", string(out.Calls[0].Value))
		assert.JSONEq(t, `"12"`, string(out.Calls[1].Value))
	})

	t.Run("syntax error", func(t *testing.T) {
		out, err := exec.Execute(context.Background(), executor.Submission{
			Source: "function sum(a, b { return a + b; }",
			Entry:  "sum",
		})
		require.NoError(t, err)
		assert.Contains(t, out.CompileError, "SyntaxError")
	})

	t.Run("looping call does not sink the batch", func(t *testing.T) {
		out, err := exec.Execute(context.Background(), executor.Submission{
			Source: "function spin(n) { if (n) { for (;;) {} } return 1; }",
			Entry:  "spin",
			Inputs: []json.RawMessage{json.RawMessage("[true]"), json.RawMessage("[false]")},
		})
		require.NoError(t, err)
		assert.Empty(t, out.CompileError)
		require.Len(t, out.Calls, 2)
		assert.Contains(t, out.Calls[0].Err, "timed out")
		assert.JSONEq(t, "1", string(out.Calls[1].Value))
	})

	t.Run("null prototype values", func(t *testing.T) {
		out, err := exec.Execute(context.Background(), executor.Submission{
			Source: "function f(n) { const m = Object.create(null); m.a = 1; if (n) { throw m; } return m; }",
			Entry:  "f",
			Inputs: []json.RawMessage{json.RawMessage("[false]"), json.RawMessage("[true]")},
		})
		require.NoError(t, err)
		require.Len(t, out.Calls, 2)
		assert.Empty(t, out.Calls[0].Err)
		assert.JSONEq(t, `{"a":1}`, string(out.Calls[0].Value))
		assert.Equal(t, "[object Object]", out.Calls[1].Err)
	})
}
