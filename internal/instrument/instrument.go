// Package instrument produces the markup that wraps a user's code before it
// is presented in the sandbox: a console shim that forwards every console
// call to the host, global error handlers, and third-party library tags.
//
// ORDER INSIDE THE DOCUMENT:
//
//	<head>
//	  shim script          ← installed before anything else runs
//	  library tags         ← loaded before user code
//	  ... user head ...
//	  user styles
//	</head>
//	<body> ... user scripts </body>
//
// Everything here is a pure function of its inputs: the same script and
// options always produce the same bytes.
package instrument

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sakif/js-playground/internal/model"
)

// Options selects which instrumentation is added.
type Options struct {
	ConsoleCapture bool     `json:"consoleCapture"`
	ErrorHandling  bool     `json:"errorHandling"`
	Libraries      []string `json:"libraries"`
}

// DefaultOptions enables both shims and no libraries.
func DefaultOptions() Options {
	return Options{ConsoleCapture: true, ErrorHandling: true}
}

// Injection is what the assembler splices into a document.
type Injection struct {
	// Head goes at the very top of <head>.
	Head string
	// Script is the user's script block, escaped for inline use.
	Script string
}

// Inject builds the head additions for opts and prepares script for inline use.
func Inject(script string, opts Options) Injection {
	var head strings.Builder

	if shim := Shim(opts); shim != "" {
		head.WriteString("<script>\n")
		head.WriteString(shim)
		head.WriteString("\n</script>\n")
	}
	for _, lib := range Resolve(opts.Libraries) {
		for _, res := range lib.Resources {
			head.WriteString(resourceTag(res))
			head.WriteByte('\n')
		}
	}

	return Injection{
		Head:   head.String(),
		Script: EscapeScript(script),
	}
}

// Shim returns the instrumentation JavaScript for opts, or "" when both
// shims are disabled.
func Shim(opts Options) string {
	if !opts.ConsoleCapture && !opts.ErrorHandling {
		return ""
	}
	var b strings.Builder
	b.WriteString(shimPrelude)
	if opts.ConsoleCapture {
		methods, _ := json.Marshal(model.ConsoleMethods)
		fmt.Fprintf(&b, shimConsole, methods)
	}
	if opts.ErrorHandling {
		b.WriteString(shimErrors)
	}
	b.WriteString(shimEpilogue)
	return b.String()
}

// Notice returns an inline script that reports message through console.error,
// so problems found while assembling show up in the console pane like any
// runtime error.
func Notice(message string) string {
	quoted, _ := json.Marshal(message)
	return "<script>console.error(" + EscapeScript(string(quoted)) + ");</script>\n"
}

var (
	scriptCloseRe = regexp.MustCompile(`(?i)</(script)`)
	commentOpenRe = regexp.MustCompile(`<!--`)
	styleCloseRe  = regexp.MustCompile(`(?i)</(style)`)
)

// EscapeScript rewrites sequences that would end an inline <script> early.
// Both replacements mean the same thing inside strings, template literals
// and regular expressions, the u flag included.
func EscapeScript(js string) string {
	js = scriptCloseRe.ReplaceAllString(js, `<\/$1`)
	return commentOpenRe.ReplaceAllString(js, `<\x21--`)
}

// EscapeStyle rewrites sequences that would end an inline <style> early.
func EscapeStyle(css string) string {
	return styleCloseRe.ReplaceAllString(css, `<\/$1`)
}
