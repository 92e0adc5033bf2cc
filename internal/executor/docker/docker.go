// Package docker grades submissions with Node.js inside throwaway containers.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/js-playground/internal/executor"
)

// Executor implements executor.Executor using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ executor.Executor = (*Executor)(nil)

// New connects to the Docker daemon, pulls the image and starts the pool.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring grader image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	// The pull only finishes once the progress stream is drained.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	e := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cli, cfg, logger),
	}
	e.pool.Start()
	return e, nil
}

func (e *Executor) Name() string { return "docker" }

// Close shuts down the pool and the docker client.
func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

// Execute runs the harness in a pooled container.
func (e *Executor) Execute(ctx context.Context, sub executor.Submission) (*executor.Outcome, error) {
	if !executor.ValidEntry(sub.Entry) {
		return nil, fmt.Errorf("invalid entry function name %q", sub.Entry)
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	start := time.Now()
	id, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}
	defer e.pool.Release(id)

	deadline := e.config.deadline(len(sub.Inputs))
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	execResp, err := e.cli.ContainerExecCreate(runCtx, id, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Env: []string{
			PayloadEnv + "=" + string(payload),
			CallTimeoutEnv + "=" + strconv.FormatInt(e.config.CallTimeout.Milliseconds(), 10),
		},
		Cmd: []string{"node", "-e", harness},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := e.cli.ContainerExecAttach(runCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &executor.Outcome{
			CompileError: fmt.Sprintf("execution timed out after %s", deadline),
			Calls:        []executor.Invocation{},
			Duration:     time.Since(start),
		}, nil
	}

	out, err := decodeOutcome(stdout.Bytes(), stderr.String())
	if err != nil {
		return nil, err
	}
	out.Duration = time.Since(start)
	return out, nil
}

// decodeOutcome parses the harness output. Node crashing before it printed
// anything (out of memory, for instance) is reported as a compile error so
// the learner sees it.
func decodeOutcome(stdout []byte, stderr string) (*executor.Outcome, error) {
	if len(bytes.TrimSpace(stdout)) == 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			return nil, fmt.Errorf("grader harness produced no output")
		}
		return &executor.Outcome{CompileError: lastLine(msg), Calls: []executor.Invocation{}}, nil
	}
	var out executor.Outcome
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, fmt.Errorf("decode harness output: %w", err)
	}
	if out.Calls == nil {
		out.Calls = []executor.Invocation{}
	}
	return &out, nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
