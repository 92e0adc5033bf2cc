// Package bridge accepts console messages that a sandboxed document posts to
// its parent page and turns them into host-side ConsoleEvents.
//
// The shell page relays a message only when it came from the preview
// iframe's window, wrapping it as
//
//	{"source": "sandbox", "data": {"type": "console", "method": "log", "args": ["hi"]}}
//
// Anything that does not match that shape exactly is dropped without a
// reply. The sandbox runs arbitrary user code, so the bridge treats every
// frame as untrusted.
package bridge

import (
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/js-playground/internal/metrics"
	"github.com/sakif/js-playground/internal/model"
)

// SourceSandbox is the only envelope source the bridge accepts.
const SourceSandbox = "sandbox"

// Limits on a single frame.
const (
	MaxFrameBytes = 256 << 10
	MaxArgs       = 64
	MaxArgBytes   = 64 << 10
)

// Drop reasons, used as metric labels.
const (
	DropSize    = "size"
	DropDecode  = "decode"
	DropSource  = "source"
	DropType    = "type"
	DropMethod  = "method"
	DropArgs    = "args"
	DropLimited = "rate"
)

type envelope struct {
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data"`
}

type message struct {
	Type   string            `json:"type"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// Options configures a Bridge. Zero values mean no rate limit, the real
// clock, no metrics and no subscriber.
type Options struct {
	Rate    rate.Limit
	Burst   int
	Now     func() time.Time
	Metrics *metrics.Metrics
	Publish func(model.ConsoleEvent)
}

// Bridge validates inbound frames for one workspace.
type Bridge struct {
	log        *ConsoleLog
	generation func() uint64
	limiter    *rate.Limiter
	now        func() time.Time
	metrics    *metrics.Metrics
	publish    func(model.ConsoleEvent)
	logger     *slog.Logger
}

// New creates a bridge appending to log. generation reports the sandbox's
// current generation at the moment a message is received.
func New(log *ConsoleLog, generation func() uint64, logger *slog.Logger, opts Options) *Bridge {
	limit := opts.Rate
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		log:        log,
		generation: generation,
		limiter:    rate.NewLimiter(limit, burst),
		now:        now,
		metrics:    opts.Metrics,
		publish:    opts.Publish,
		logger:     logger,
	}
}

// Receive decodes and validates one frame. Accepted messages are stamped,
// appended to the log and published; ok is false for dropped frames.
func (b *Bridge) Receive(frame []byte) (event model.ConsoleEvent, ok bool) {
	msg, reason := decode(frame)
	if reason == "" && !b.limiter.AllowN(b.now(), 1) {
		reason = DropLimited
	}
	if reason != "" {
		b.drop(reason)
		return model.ConsoleEvent{}, false
	}

	args := make([]string, len(msg.Args))
	for i, raw := range msg.Args {
		// decode already checked every arg is a string.
		_ = json.Unmarshal(raw, &args[i])
	}

	event = model.ConsoleEvent{
		Method:     msg.Method,
		Args:       args,
		Timestamp:  b.now(),
		Generation: b.generation(),
	}
	b.log.Append(event)
	b.metrics.ConsoleEvent(event.Method)
	if b.publish != nil {
		b.publish(event)
	}
	return event, true
}

func (b *Bridge) drop(reason string) {
	b.metrics.BridgeDropped(reason)
	b.logger.Debug("bridge frame dropped", "reason", reason)
}

// decode returns the parsed message, or a drop reason.
func decode(frame []byte) (message, string) {
	var msg message
	if len(frame) > MaxFrameBytes {
		return msg, DropSize
	}
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return msg, DropDecode
	}
	if env.Source != SourceSandbox {
		return msg, DropSource
	}
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return msg, DropDecode
	}
	if msg.Type != "console" {
		return msg, DropType
	}
	if !model.IsConsoleMethod(msg.Method) {
		return msg, DropMethod
	}
	if len(msg.Args) > MaxArgs {
		return msg, DropArgs
	}
	for _, raw := range msg.Args {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return msg, DropArgs
		}
		if len(s) > MaxArgBytes {
			return msg, DropSize
		}
	}
	return msg, ""
}
