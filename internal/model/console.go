package model

import "time"

// ConsoleEvent is one console call (or captured runtime error) reported by
// the sandboxed document. Args are already text: the sandbox never hands the
// host live values.
type ConsoleEvent struct {
	Method     string    `json:"method"`
	Args       []string  `json:"args"`
	Timestamp  time.Time `json:"timestamp"`
	Generation uint64    `json:"generation"`
}

// Console methods the shim forwards. Anything else arriving at the bridge is
// treated as a foreign message.
var ConsoleMethods = []string{
	"log", "error", "warn", "info", "debug", "table", "trace", "dir",
	"group", "groupCollapsed", "groupEnd", "count", "assert",
	"time", "timeEnd", "timeLog", "clear",
}

var consoleMethodSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(ConsoleMethods))
	for _, name := range ConsoleMethods {
		m[name] = struct{}{}
	}
	return m
}()

// IsConsoleMethod reports whether name is a forwarded console method.
func IsConsoleMethod(name string) bool {
	_, ok := consoleMethodSet[name]
	return ok
}
