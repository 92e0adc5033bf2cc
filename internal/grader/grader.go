// Package grader checks a learner's submission against a challenge's test
// cases.
//
// Problems in the submitted code never come back as errors. A syntax error,
// or source that does not define the entry function, becomes a single
// failing "Code execution" result. A test whose call throws records the
// message and grading moves on to the next test. The error return is kept
// for the grader itself failing: the executor is unavailable or the request
// was cancelled.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/metrics"
	"github.com/sakif/js-playground/internal/model"
)

// CompileDescription labels the result reported when code never ran.
const CompileDescription = "Code execution"

// Grader runs challenge tests through an Executor.
type Grader struct {
	exec    executor.Executor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a grader over exec. m may be nil.
func New(exec executor.Executor, logger *slog.Logger, m *metrics.Metrics) *Grader {
	return &Grader{exec: exec, logger: logger, metrics: m}
}

// Engine names the executor in use.
func (g *Grader) Engine() string { return g.exec.Name() }

// Grade runs source against every test case of ch, in order.
func (g *Grader) Grade(ctx context.Context, ch model.Challenge, source string) ([]model.TestResult, error) {
	start := time.Now()

	sub := executor.Submission{
		Source: source,
		Entry:  ch.Entry,
		Inputs: make([]json.RawMessage, len(ch.Tests)),
	}
	for i, tc := range ch.Tests {
		args := tc.Input
		if args == nil {
			args = []any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("challenge %s test %d: encode input: %w", ch.ID, i+1, err)
		}
		sub.Inputs[i] = raw
	}

	out, err := g.exec.Execute(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("execute submission: %w", err)
	}

	var results []model.TestResult
	if out.CompileError != "" {
		results = []model.TestResult{{
			TestNum:     0,
			Description: CompileDescription,
			Error:       out.CompileError,
			Passed:      false,
		}}
	} else {
		if len(out.Calls) != len(ch.Tests) {
			return nil, fmt.Errorf("executor %s returned %d results for %d tests", g.exec.Name(), len(out.Calls), len(ch.Tests))
		}
		results = make([]model.TestResult, len(ch.Tests))
		for i, tc := range ch.Tests {
			results[i] = compare(i+1, tc, out.Calls[i])
		}
	}

	passed := AllPassed(results)
	g.metrics.Grade(g.exec.Name(), passed, time.Since(start))
	g.logger.Info("submission graded",
		slog.String("challenge", ch.ID),
		slog.String("engine", g.exec.Name()),
		slog.Int("tests", len(ch.Tests)),
		slog.Bool("passed", passed),
		slog.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func compare(num int, tc model.TestCase, call executor.Invocation) model.TestResult {
	res := model.TestResult{
		TestNum:     num,
		Description: tc.Description,
		Input:       tc.Input,
		Expected:    tc.Expected,
		ActualText:  call.Text,
	}
	if res.Description == "" {
		res.Description = fmt.Sprintf("Test %d", num)
	}

	switch {
	case call.Err != "":
		res.Error = call.Err
		res.ActualText = ""
	case call.Undefined:
		// undefined never equals any expected value, null included.
	default:
		actual, err := decode(call.Value)
		if err != nil {
			res.Error = fmt.Sprintf("unreadable return value: %v", err)
			break
		}
		res.Actual = actual
		expected, err := Normalize(tc.Expected)
		if err != nil {
			res.Error = fmt.Sprintf("unreadable expected value: %v", err)
			break
		}
		res.Passed = cmp.Equal(expected, actual)
	}
	return res
}

// Normalize converts v to the shape encoding/json would decode it into, so
// values from YAML, Go literals and JavaScript compare alike.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func decode(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// AllPassed reports whether results is non-empty and every result passed.
func AllPassed(results []model.TestResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
