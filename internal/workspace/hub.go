package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/assembler"
	"github.com/sakif/js-playground/internal/metrics"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/service"
)

// ErrFull is returned when the hub is at its workspace limit and nothing is
// idle enough to reap.
var ErrFull = errors.New("workspace limit reached")

// Limits bound the hub.
type Limits struct {
	// IdleTTL is how long a workspace with no listeners survives without
	// activity.
	IdleTTL time.Duration
	// Max is the number of open workspaces. Zero means no limit.
	Max int
}

// Hub keeps every open workspace, keyed by an unguessable ID.
type Hub struct {
	settings Settings
	limits   Limits
	asm      *assembler.Assembler
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	workspaces map[string]*Workspace
}

// NewHub returns an empty hub. Call Run to start reaping idle workspaces.
func NewHub(settings Settings, limits Limits, asm *assembler.Assembler, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		settings:   settings,
		limits:     limits,
		asm:        asm,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Create opens a workspace holding a copy of files and builds its first
// preview before returning.
func (h *Hub) Create(files *model.FileSet) (*Workspace, error) {
	if files != nil {
		if err := service.ValidateFiles(files); err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	if h.limits.Max > 0 && len(h.workspaces) >= h.limits.Max {
		h.mu.Unlock()
		h.Reap()
		h.mu.Lock()
		if len(h.workspaces) >= h.limits.Max {
			h.mu.Unlock()
			return nil, apperror.Unavailable("too many open workspaces, try again later", ErrFull)
		}
	}
	w := newWorkspace(uuid.NewString(), files, h.settings, h.asm, h.metrics, h.logger, h.now)
	h.workspaces[w.ID] = w
	h.mu.Unlock()

	h.metrics.WorkspaceOpened()
	h.logger.Info("workspace opened", slog.String("id", w.ID))

	if _, err := w.Run(); err != nil {
		return nil, err
	}
	return w, nil
}

// Get returns an open workspace.
func (h *Hub) Get(id string) (*Workspace, error) {
	h.mu.RLock()
	w, ok := h.workspaces[id]
	h.mu.RUnlock()
	if !ok {
		return nil, apperror.NotFound("workspace", id)
	}
	return w, nil
}

// Close removes and closes a workspace.
func (h *Hub) Close(id string) error {
	h.mu.Lock()
	w, ok := h.workspaces[id]
	delete(h.workspaces, id)
	h.mu.Unlock()
	if !ok {
		return apperror.NotFound("workspace", id)
	}
	w.Close()
	h.metrics.WorkspaceClosed()
	h.logger.Info("workspace closed", slog.String("id", id))
	return nil
}

// Len is the number of open workspaces.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.workspaces)
}

// Reap closes workspaces idle for longer than IdleTTL that nobody is
// listening to. It returns how many it closed.
func (h *Hub) Reap() int {
	if h.limits.IdleTTL <= 0 {
		return 0
	}
	cutoff := h.now().Add(-h.limits.IdleTTL)

	h.mu.Lock()
	var idle []*Workspace
	for id, w := range h.workspaces {
		if w.idleSince(cutoff) {
			idle = append(idle, w)
			delete(h.workspaces, id)
		}
	}
	h.mu.Unlock()

	for _, w := range idle {
		w.Close()
		h.metrics.WorkspaceClosed()
	}
	if len(idle) > 0 {
		h.logger.Info("idle workspaces reaped", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run reaps on an interval until ctx is done, then closes everything.
func (h *Hub) Run(ctx context.Context) {
	interval := h.limits.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.CloseAll()
			return
		case <-ticker.C:
			h.Reap()
		}
	}
}

// CloseAll closes every workspace.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.workspaces
	h.workspaces = make(map[string]*Workspace)
	h.mu.Unlock()

	for _, w := range all {
		w.Close()
		h.metrics.WorkspaceClosed()
	}
}
