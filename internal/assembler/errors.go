package assembler

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEntryMarkup means the file set has no markup file to build from.
	ErrNoEntryMarkup = errors.New("no entry markup file")
	// ErrMalformedMarkup means a complete document is missing </head> or </body>.
	ErrMalformedMarkup = errors.New("malformed markup")
)

// Error describes why a file set could not be assembled as-is.
type Error struct {
	Err  error  // ErrNoEntryMarkup or ErrMalformedMarkup
	File string // entry file name, empty when there is none
	Msg  string
}

func (e *Error) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.File, e.Err, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }
