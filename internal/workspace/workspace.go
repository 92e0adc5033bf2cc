// Package workspace ties the preview pipeline together for one editing
// session.
//
// A Workspace owns a project's files and everything derived from them: the
// sandbox slot, the console log, the bridge feeding it and the scheduler
// deciding when to rebuild. Edits arm a debounced auto run; Run rebuilds at
// once. Each rebuild assembles the files, presents the result as a new
// sandbox generation and tells subscribers to reload.
package workspace

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/assembler"
	"github.com/sakif/js-playground/internal/bridge"
	"github.com/sakif/js-playground/internal/instrument"
	"github.com/sakif/js-playground/internal/metrics"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/sandbox"
	"github.com/sakif/js-playground/internal/scheduler"
	"github.com/sakif/js-playground/internal/service"
)

// Settings are shared by every workspace a Hub creates.
type Settings struct {
	Debounce    time.Duration
	AutoRun     bool
	ConsoleCap  int
	BridgeRate  float64
	BridgeBurst int
	// AfterFunc replaces the debounce timer factory. Nil uses real timers.
	AfterFunc scheduler.AfterFunc
}

// State is a snapshot of a workspace for the editor.
type State struct {
	ID        string             `json:"id"`
	Files     *model.FileSet     `json:"files"`
	Options   instrument.Options `json:"options"`
	AutoRun   bool               `json:"autoRun"`
	Document  *sandbox.Document  `json:"document,omitempty"`
	Problems  []string           `json:"problems"`
	Pending   bool               `json:"pending"`
	Listeners int                `json:"listeners"`
}

// Preferences changes instrumentation and auto-run. Nil fields are kept.
type Preferences struct {
	ConsoleCapture *bool `json:"consoleCapture"`
	ErrorHandling  *bool `json:"errorHandling"`
	AutoRun        *bool `json:"autoRun"`
}

// Workspace is one editor session: its files, console log and sandbox
// slot, plus the scheduler that rebuilds the preview after edits.
type Workspace struct {
	ID string

	asm     *assembler.Assembler
	console *bridge.ConsoleLog
	host    *sandbox.Host
	bridge  *bridge.Bridge
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	files    *model.FileSet
	opts     instrument.Options
	autoRun  bool
	problems []string
	lastUsed time.Time
	closed   bool

	subs subscribers
}

func newWorkspace(id string, files *model.FileSet, s Settings, asm *assembler.Assembler, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *Workspace {
	if files == nil {
		files = model.NewFileSet()
	}
	w := &Workspace{
		ID:       id,
		asm:      asm,
		console:  bridge.NewConsoleLog(s.ConsoleCap),
		metrics:  m,
		logger:   logger.With(slog.String("workspace", id)),
		now:      now,
		files:    files.Clone(),
		opts:     instrument.DefaultOptions(),
		autoRun:  s.AutoRun,
		lastUsed: now(),
	}
	w.host = sandbox.NewHost(w.logger, w.presented)
	w.bridge = bridge.New(w.console, w.host.Generation, w.logger, bridge.Options{
		Rate:    rate.Limit(s.BridgeRate),
		Burst:   s.BridgeBurst,
		Now:     now,
		Metrics: m,
		Publish: func(e model.ConsoleEvent) {
			w.subs.publish(Event{Type: EventConsole, Console: &e})
		},
	})

	opts := []scheduler.Option{scheduler.WithMetrics(m), scheduler.WithLogger(w.logger)}
	if s.AfterFunc != nil {
		opts = append(opts, scheduler.WithAfterFunc(s.AfterFunc))
	}
	w.sched = scheduler.New(s.Debounce, w.run, opts...)
	return w
}

// run is the scheduler's RunFunc: assemble, then present.
func (w *Workspace) run(trigger scheduler.Trigger) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	files := w.files.Clone()
	opts := w.opts
	opts.Libraries = append([]string(nil), w.opts.Libraries...)
	w.mu.Unlock()

	if trigger == scheduler.Manual {
		w.console.Clear()
		w.subs.publish(Event{Type: EventClear})
	}

	html, problems := w.asm.Build(files, opts)
	msgs := make([]string, 0, len(problems))
	for _, p := range problems {
		w.metrics.AssemblyProblem(problemKind(p))
		msgs = append(msgs, p.Error())
	}

	w.mu.Lock()
	w.problems = msgs
	w.mu.Unlock()

	doc := w.host.Present(html)
	w.logger.Debug("preview rebuilt",
		slog.String("trigger", trigger.String()),
		slog.Uint64("generation", doc.Generation),
		slog.Int("problems", len(msgs)),
	)
}

// presented is the sandbox host's observer.
func (w *Workspace) presented(doc sandbox.Document) {
	w.subs.publish(Event{Type: EventReload, Document: &doc, Problems: w.Problems()})
}

func problemKind(err error) string {
	switch {
	case errors.Is(err, assembler.ErrNoEntryMarkup):
		return "no_entry"
	case errors.Is(err, assembler.ErrMalformedMarkup):
		return "malformed"
	default:
		return "other"
	}
}

// edited records activity and arms an auto run. Callers hold w.mu.
func (w *Workspace) editedLocked() {
	w.lastUsed = w.now()
	if w.autoRun {
		w.sched.ScheduleRun(scheduler.Auto)
	}
}

func (w *Workspace) checkOpenLocked() error {
	if w.closed {
		return apperror.NotFound("workspace", w.ID)
	}
	return nil
}

// State returns a snapshot of the workspace.
func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUsed = w.now()

	st := State{
		ID:        w.ID,
		Files:     w.files.Clone(),
		Options:   w.opts,
		AutoRun:   w.autoRun,
		Problems:  append([]string{}, w.problems...),
		Pending:   w.sched.Pending(),
		Listeners: w.subs.count(),
	}
	st.Options.Libraries = append([]string{}, w.opts.Libraries...)
	if doc, ok := w.host.Current(); ok {
		st.Document = &doc
	}
	return st
}

// Files returns a copy of the workspace's files.
func (w *Workspace) Files() *model.FileSet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files.Clone()
}

// Libraries returns the selected library names.
func (w *Workspace) Libraries() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string{}, w.opts.Libraries...)
}

// Problems returns what the last rebuild had to recover from.
func (w *Workspace) Problems() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string{}, w.problems...)
}

// PutFile creates or replaces a file. An empty language is inferred from
// the name.
func (w *Workspace) PutFile(name, content string, lang model.Language) error {
	if err := service.ValidateFileName(name); err != nil {
		return err
	}
	if lang != "" && !lang.Valid() {
		return apperror.ValidationFailed("language", "unknown language "+string(lang))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpenLocked(); err != nil {
		return err
	}
	if _, exists := w.files.Get(name); !exists && w.files.Len() >= service.MaxProjectFiles {
		return apperror.ValidationFailed("files", "too many files in this project")
	}
	w.files.Set(model.VirtualFile{Name: name, Content: content, Language: lang})
	w.editedLocked()
	return nil
}

// DeleteFile removes name. Like every edit it arms an auto run when enabled.
func (w *Workspace) DeleteFile(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpenLocked(); err != nil {
		return err
	}
	if !w.files.Delete(name) {
		return apperror.NotFound("file", name)
	}
	w.editedLocked()
	return nil
}

// RenameFile keeps the file's position and content. The language follows
// the new extension.
func (w *Workspace) RenameFile(from, to string) error {
	if err := service.ValidateFileName(to); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpenLocked(); err != nil {
		return err
	}
	if _, ok := w.files.Get(from); !ok {
		return apperror.NotFound("file", from)
	}
	if from == to {
		return nil
	}
	if _, ok := w.files.Get(to); ok {
		return apperror.Conflict("file", to)
	}
	if err := w.files.Rename(from, to); err != nil {
		return err
	}
	f, _ := w.files.Get(to)
	f.Language = model.LanguageFromName(to)
	w.files.Set(f)
	w.editedLocked()
	return nil
}

// Replace swaps in a whole new file set, as when a template is loaded or a
// project opened. A nil libraries keeps the current selection.
func (w *Workspace) Replace(files *model.FileSet, libraries []string) error {
	if err := service.ValidateFiles(files); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpenLocked(); err != nil {
		return err
	}
	w.files = files.Clone()
	if libraries != nil {
		w.opts.Libraries = instrument.Known(libraries)
	}
	w.editedLocked()
	return nil
}

// SetLibraries selects the third-party libraries injected into the preview.
// Unknown names are dropped.
func (w *Workspace) SetLibraries(names []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpenLocked(); err != nil {
		return err
	}
	w.opts.Libraries = instrument.Known(names)
	w.editedLocked()
	return nil
}

// SetPreferences toggles instrumentation and auto-run.
func (w *Workspace) SetPreferences(p Preferences) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpenLocked(); err != nil {
		return err
	}
	if p.ConsoleCapture != nil {
		w.opts.ConsoleCapture = *p.ConsoleCapture
	}
	if p.ErrorHandling != nil {
		w.opts.ErrorHandling = *p.ErrorHandling
	}
	if p.AutoRun != nil {
		w.autoRun = *p.AutoRun
	}
	w.editedLocked()
	return nil
}

// Run rebuilds the preview now, cancelling any pending auto run, and clears
// the console. It returns once the new document is presented.
func (w *Workspace) Run() (sandbox.Document, error) {
	w.mu.Lock()
	if err := w.checkOpenLocked(); err != nil {
		w.mu.Unlock()
		return sandbox.Document{}, err
	}
	w.lastUsed = w.now()
	w.mu.Unlock()

	w.sched.ScheduleRun(scheduler.Manual)
	doc, _ := w.host.Current()
	return doc, nil
}

// Receive hands a frame relayed from the sandbox to the bridge.
func (w *Workspace) Receive(frame []byte) (model.ConsoleEvent, bool) {
	w.mu.Lock()
	w.lastUsed = w.now()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return model.ConsoleEvent{}, false
	}
	return w.bridge.Receive(frame)
}

// Console returns the captured console entries, oldest first.
func (w *Workspace) Console() []model.ConsoleEvent {
	return w.console.Entries()
}

// ClearConsole empties the console log.
func (w *Workspace) ClearConsole() {
	w.console.Clear()
	w.subs.publish(Event{Type: EventClear})
}

// Document returns the sandbox document for gen while it is live.
func (w *Workspace) Document(gen uint64) (sandbox.Document, error) {
	return w.host.Document(gen)
}

// Standalone builds a downloadable page from the current files, without
// the console and error shims.
func (w *Workspace) Standalone() (string, error) {
	w.mu.Lock()
	files := w.files.Clone()
	libs := append([]string(nil), w.opts.Libraries...)
	w.mu.Unlock()

	html, err := w.asm.Standalone(files, libs)
	if err != nil {
		return "", apperror.ValidationFailed("files", err.Error())
	}
	return html, nil
}

// Subscribe returns a channel of events and a function to stop receiving
// them. The channel is closed when the workspace closes.
func (w *Workspace) Subscribe() (<-chan Event, func()) {
	return w.subs.add()
}

func (w *Workspace) idleSince(cutoff time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed.Before(cutoff) && w.subs.count() == 0
}

// Close stops the scheduler, empties the sandbox and ends subscriptions.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.sched.Stop()
	w.host.Destroy()
	w.subs.closeAll()
	w.logger.Debug("workspace closed")
}
