// Package sandbox holds the single isolated document a workspace previews.
//
// A Host has one slot. Present replaces whatever is in it with a brand new
// document and bumps the generation; nothing from the previous document
// survives. The browser loads the slot through /sandbox/{workspace}/{gen}
// inside an iframe, and the response headers put that document in an opaque
// origin so it cannot read host storage or navigate the top window.
package sandbox

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrEmpty means nothing has been presented or the slot was destroyed.
	ErrEmpty = errors.New("sandbox is empty")
	// ErrStale means the requested generation has been replaced.
	ErrStale = errors.New("sandbox generation replaced")
)

// Permissions is the iframe sandbox token list. It deliberately leaves out
// allow-same-origin and allow-top-navigation.
const Permissions = "allow-scripts allow-modals allow-forms"

// Document is one presented generation.
type Document struct {
	Generation  uint64    `json:"generation"`
	Title       string    `json:"title"`
	HTML        string    `json:"-"`
	PresentedAt time.Time `json:"presentedAt"`
}

// Observer is told about every presented document.
type Observer func(Document)

// Host owns one sandbox slot.
type Host struct {
	mu     sync.RWMutex
	gen    uint64
	doc    *Document
	notify Observer
	now    func() time.Time
	logger *slog.Logger
}

// NewHost creates an empty host. notify may be nil.
func NewHost(logger *slog.Logger, notify Observer) *Host {
	return &Host{notify: notify, now: time.Now, logger: logger}
}

// Present tears down the current document and installs html as a new
// generation. It does not wait for the document to run.
func (h *Host) Present(html string) Document {
	h.mu.Lock()
	h.gen++
	doc := Document{
		Generation:  h.gen,
		Title:       Title(html),
		HTML:        html,
		PresentedAt: h.now(),
	}
	h.doc = &doc
	h.mu.Unlock()

	h.logger.Debug("sandbox presented", "generation", doc.Generation, "bytes", len(html))
	if h.notify != nil {
		h.notify(doc)
	}
	return doc
}

// Destroy empties the slot. Later requests for any earlier generation fail.
func (h *Host) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.doc != nil {
		h.gen++
		h.doc = nil
	}
}

// Current returns the live document, if any.
func (h *Host) Current() (Document, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.doc == nil {
		return Document{}, false
	}
	return *h.doc, true
}

// Generation returns the latest generation number. It is 0 before the first
// Present.
func (h *Host) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gen
}

// Document returns the document for gen only while it is the live one.
func (h *Host) Document(gen uint64) (Document, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.doc == nil {
		return Document{}, ErrEmpty
	}
	if h.doc.Generation != gen {
		return Document{}, ErrStale
	}
	return *h.doc, nil
}

// Title extracts the <title> text from an HTML document.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// SetHeaders applies the isolation policy to a sandbox document response.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", "sandbox "+Permissions)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
}
