// Package jsvm runs graded submissions in an embedded goja runtime.
//
// Every submission gets a fresh runtime, so nothing leaks between learners.
// Host-only globals are removed and timers are stubbed out: grading is
// synchronous, a call either returns or throws.
package jsvm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/js-playground/internal/executor"
)

// Config bounds a single submission.
type Config struct {
	// Timeout applies to compiling and to each call separately.
	Timeout time.Duration
	// MaxCallStackSize caps recursion depth.
	MaxCallStackSize int
}

// DefaultConfig gives each call two seconds.
func DefaultConfig() Config {
	return Config{Timeout: 2 * time.Second, MaxCallStackSize: 1024}
}

// Executor implements executor.Executor with goja.
type Executor struct {
	config Config
}

var _ executor.Executor = (*Executor)(nil)

// New fills zero fields of cfg from DefaultConfig.
func New(cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = DefaultConfig().MaxCallStackSize
	}
	return &Executor{config: cfg}
}

func (e *Executor) Name() string { return "goja" }

type timeoutError struct{ d time.Duration }

func (t timeoutError) Error() string { return fmt.Sprintf("execution timed out after %s", t.d) }

// Execute compiles sub.Source and calls sub.Entry once per input.
func (e *Executor) Execute(ctx context.Context, sub executor.Submission) (*executor.Outcome, error) {
	if !executor.ValidEntry(sub.Entry) {
		return nil, fmt.Errorf("invalid entry function name %q", sub.Entry)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	vm := goja.New()
	vm.SetMaxCallStackSize(e.config.MaxCallStackSize)

	// Grab the JSON helpers before user code can replace them.
	jsonObj := vm.Get("JSON").ToObject(vm)
	parse, _ := goja.AssertFunction(jsonObj.Get("parse"))
	stringify, _ := goja.AssertFunction(jsonObj.Get("stringify"))

	text, err := newPrinter(vm)
	if err != nil {
		return nil, fmt.Errorf("jsvm: preparing runtime: %w", err)
	}

	setupGlobals(vm)

	out := &executor.Outcome{Calls: []executor.Invocation{}}

	prog, err := goja.Compile("submission.js", wrap(sub.Source, sub.Entry), false)
	if err != nil {
		out.CompileError = text.message(err)
		out.Duration = time.Since(start)
		return out, nil
	}

	var entryVal goja.Value
	err = e.guard(ctx, vm, func() error {
		var runErr error
		entryVal, runErr = vm.RunProgram(prog)
		return runErr
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		out.CompileError = e.describe(ctx, vm, text, err)
		out.Duration = time.Since(start)
		return out, nil
	}
	fn, ok := goja.AssertFunction(entryVal)
	if !ok {
		out.CompileError = fmt.Sprintf("%s is not defined as a function", sub.Entry)
		out.Duration = time.Since(start)
		return out, nil
	}

	for _, input := range sub.Inputs {
		var call executor.Invocation
		err := e.guard(ctx, vm, func() error {
			args, err := arguments(vm, parse, string(input))
			if err != nil {
				return err
			}
			res, err := fn(goja.Undefined(), args...)
			if err != nil {
				return err
			}
			call, err = text.encode(res, stringify)
			return err
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			call = executor.Invocation{Err: e.describe(ctx, vm, text, err)}
		}
		out.Calls = append(out.Calls, call)
	}

	out.Duration = time.Since(start)
	return out, nil
}

// guard runs f with a watchdog that interrupts the runtime on timeout or
// cancellation. The interrupt flag is always cleared before returning.
func (e *Executor) guard(ctx context.Context, vm *goja.Runtime, f func() error) error {
	done := make(chan struct{})
	exited := make(chan struct{})
	timer := time.NewTimer(e.config.Timeout)

	go func() {
		defer close(exited)
		defer timer.Stop()
		select {
		case <-timer.C:
			vm.Interrupt(timeoutError{e.config.Timeout})
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	err := recovered(f)
	close(done)
	<-exited
	vm.ClearInterrupt()
	return err
}

// describe renders err under the same watchdog as user code, since printing
// a thrown value may call back into it.
func (e *Executor) describe(ctx context.Context, vm *goja.Runtime, text printer, err error) string {
	msg := "uncaught exception"
	_ = e.guard(ctx, vm, func() error {
		msg = text.message(err)
		return nil
	})
	return msg
}

// recovered runs f, turning a goja panic into an error. goja panics with
// its own exception types when a Go-side conversion fails inside a call.
func recovered(f func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch v := r.(type) {
		case *goja.Exception:
			err = v
		case *goja.InterruptedError:
			err = v
		default:
			err = fmt.Errorf("runtime panic: %v", r)
		}
	}()
	return f()
}

func setupGlobals(vm *goja.Runtime) {
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = vm.Set(name, goja.Undefined())
	}
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }

	console := vm.NewObject()
	for _, method := range []string{"log", "info", "warn", "error", "debug", "table", "dir", "trace"} {
		_ = console.Set(method, noop)
	}
	_ = vm.Set("console", console)

	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		_ = vm.Set(name, noop)
	}
}

// wrap turns source into an expression that evaluates to the entry
// function, or undefined if the source does not define one.
func wrap(source, entry string) string {
	return "(function () {\n" + source + "\n;return typeof " + entry +
		" === \"function\" ? " + entry + " : undefined;\n})()"
}

func arguments(vm *goja.Runtime, parse goja.Callable, input string) ([]goja.Value, error) {
	if input == "" {
		return nil, nil
	}
	parsed, err := parse(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		return nil, err
	}
	if goja.IsNull(parsed) || goja.IsUndefined(parsed) {
		return nil, nil
	}
	list := parsed.ToObject(vm)
	n := int(list.Get("length").ToInteger())
	args := make([]goja.Value, n)
	for i := range n {
		args[i] = list.Get(strconv.Itoa(i))
	}
	return args, nil
}

// printerSource builds a String() that never throws. It is evaluated before
// user code runs, so later changes to String or Object.prototype do not
// reach it. Null-prototype objects have no toString and fall back to their
// tag.
const printerSource = `(function (S, tag) {
  return function (v) {
    try { return S(v); } catch (e) {}
    try { return tag(v); } catch (e) { return "[object]"; }
  };
})(String, Function.prototype.call.bind(Object.prototype.toString))`

// printer renders JS values as text without goja's Value.String, which
// panics on values that have no primitive form.
type printer struct {
	fn goja.Callable
}

func newPrinter(vm *goja.Runtime) (printer, error) {
	v, err := vm.RunString(printerSource)
	if err != nil {
		return printer{}, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return printer{}, errors.New("printer is not a function")
	}
	return printer{fn: fn}, nil
}

func (p printer) text(v goja.Value) (string, error) {
	res, err := p.fn(goja.Undefined(), v)
	if err != nil {
		return "", err
	}
	s, _ := res.Export().(string)
	return s, nil
}

// encode records a returned value. The error is only set when the runtime
// was interrupted while printing it.
func (p printer) encode(res goja.Value, stringify goja.Callable) (executor.Invocation, error) {
	if res == nil || goja.IsUndefined(res) {
		return executor.Invocation{Undefined: true, Text: "undefined"}, nil
	}
	text, err := p.text(res)
	if err != nil {
		return executor.Invocation{}, err
	}
	s, err := stringify(goja.Undefined(), res)
	if err != nil {
		return executor.Invocation{Text: text, Err: p.message(err)}, nil
	}
	if goja.IsUndefined(s) {
		// functions and symbols have no JSON form
		return executor.Invocation{Undefined: true, Text: text}, nil
	}
	js, _ := s.Export().(string)
	return executor.Invocation{Value: []byte(js), Text: text}, nil
}

func (p printer) message(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v, ok := interrupted.Value().(error); ok {
			return v.Error()
		}
		return fmt.Sprint(interrupted.Value())
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		v := exception.Value()
		if v == nil {
			return "uncaught exception"
		}
		if p.fn != nil {
			if text, err := p.text(v); err == nil {
				return text
			}
		}
		return "uncaught exception"
	}
	return err.Error()
}
