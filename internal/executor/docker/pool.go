package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Pool keeps a set of idle Node containers running so a grading request only
// pays for `docker exec`, not container start-up. A container is used for
// exactly one submission and then removed.
type Pool struct {
	cli       *client.Client
	config    Config
	logger    *slog.Logger
	ready     chan string
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates an idle pool. Call Start to begin warming containers.
func NewPool(cli *client.Client, cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cli:    cli,
		config: cfg,
		logger: logger,
		ready:  make(chan string, cfg.PoolSize),
		done:   make(chan struct{}),
	}
}

// Start launches the refill loop.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting grader container pool", slog.Int("size", p.config.PoolSize), slog.String("image", p.config.Image))
		p.wg.Add(1)
		go p.refill()
	})
}

// Stop ends the refill loop and removes every idle container.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping grader container pool")
		close(p.done)
		p.wg.Wait()
		for {
			select {
			case id := <-p.ready:
				p.remove(id)
			default:
				return
			}
		}
	})
}

// Acquire takes an idle container, waiting until one is ready or ctx ends.
// The caller owns the container and must Release it.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.ready:
		return id, nil
	case <-p.done:
		return "", fmt.Errorf("container pool stopped")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Release destroys a used container. The refill loop replaces it.
func (p *Pool) Release(id string) {
	p.remove(id)
}

func (p *Pool) refill() {
	defer p.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-p.done:
			return
		default:
		}

		if len(p.ready) == cap(p.ready) {
			select {
			case <-p.done:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		id, err := p.create()
		if err != nil {
			p.logger.Error("failed to warm grader container", slog.String("error", err.Error()))
			select {
			case <-p.done:
				return
			case <-time.After(backoff):
			}
			continue
		}

		select {
		case p.ready <- id:
		case <-p.done:
			p.remove(id)
			return
		}
	}
}

// create starts an idle, locked-down container that just sleeps.
func (p *Pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    p.config.MemoryLimit,
			NanoCPUs:  int64(p.config.CPULimit * 1e9),
			PidsLimit: ptr(int64(64)),
		},
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:  p.config.Image,
		Cmd:    []string{"sleep", "infinity"},
		User:   "node",
		Labels: map[string]string{"app": "js-playground-grader"},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return "", fmt.Errorf("start container: %w", err)
	}
	return resp.ID, nil
}

func (p *Pool) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Warn("failed to remove grader container", slog.String("id", id), slog.String("error", err.Error()))
	}
}

func ptr[T any](v T) *T { return &v }
