// Package executor defines how graded submissions are run. Implementations
// live in subpackages: jsvm evaluates in-process with goja, docker runs Node
// inside a pooled, network-less container.
package executor

import (
	"context"
	"encoding/json"
	"regexp"
	"time"
)

// Submission is a learner's source plus the calls to make against it.
type Submission struct {
	Source string `json:"source"`
	// Entry names the function the source must define.
	Entry string `json:"entry"`
	// Inputs holds one JSON array of positional arguments per call.
	Inputs []json.RawMessage `json:"inputs"`
}

// Invocation is the result of calling Entry with one input.
type Invocation struct {
	// Value is the JSON encoding of the return value. Empty when Undefined
	// or Err is set.
	Value     json.RawMessage `json:"value,omitempty"`
	Undefined bool            `json:"undefined,omitempty"`
	// Text is the value as JavaScript would print it, for display.
	Text string `json:"text,omitempty"`
	Err  string `json:"error,omitempty"`
}

// Outcome reports what happened to a Submission. CompileError is set when
// the source never produced a callable entry function; Calls is then empty.
type Outcome struct {
	CompileError string        `json:"compileError,omitempty"`
	Calls        []Invocation  `json:"calls"`
	Duration     time.Duration `json:"duration"`
}

// Executor runs submissions in isolation. The error return is for
// infrastructure failures only: errors in the submitted code are reported
// inside the Outcome.
type Executor interface {
	Name() string
	Execute(ctx context.Context, sub Submission) (*Outcome, error)
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ValidEntry reports whether name can be used as an entry function name.
func ValidEntry(name string) bool {
	return identifier.MatchString(name)
}
