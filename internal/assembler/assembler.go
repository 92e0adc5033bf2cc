// Package assembler turns a project's virtual files into one HTML document
// that can be loaded into the sandbox.
//
// The entry markup file is either a complete document (it has a doctype or
// an <html> element) or a fragment. Complete documents get the user's styles
// and scripts spliced in at the </head> and </body> markers. Fragments are
// wrapped in a skeleton document. Build is the entry point the preview
// pipeline uses: it never fails, it degrades and reports.
package assembler

import (
	"path"
	"strings"

	"github.com/sakif/js-playground/internal/instrument"
	"github.com/sakif/js-playground/internal/model"
)

// EntryFileName is preferred over any other markup file.
const EntryFileName = "index.html"

// ResetCSS is the default stylesheet fragments are wrapped with.
const ResetCSS = `*, *::before, *::after { box-sizing: border-box; }
body { margin: 0; padding: 1rem; font-family: system-ui, sans-serif; line-height: 1.5; }`

// Preprocessor transforms a file's content before it is concatenated.
type Preprocessor func(content string) string

// Assembler builds documents. The zero value has no preprocessors.
type Assembler struct {
	pre map[string]Preprocessor
}

// New returns an Assembler with no preprocessors registered.
func New() *Assembler {
	return &Assembler{pre: make(map[string]Preprocessor)}
}

// Register installs p for files with extension ext (".js", ".css", ...).
func (a *Assembler) Register(ext string, p Preprocessor) {
	if a.pre == nil {
		a.pre = make(map[string]Preprocessor)
	}
	a.pre[strings.ToLower(ext)] = p
}

func (a *Assembler) content(f model.VirtualFile) string {
	if p, ok := a.pre[strings.ToLower(path.Ext(f.Name))]; ok {
		return p(f.Content)
	}
	return f.Content
}

// sources is a file set split into the pieces a document is built from.
type sources struct {
	entry    model.VirtualFile
	hasEntry bool
	style    string
	script   string
}

func (a *Assembler) collect(files *model.FileSet) sources {
	var (
		src            sources
		styles, script []string
	)
	if f, ok := files.Get(EntryFileName); ok {
		src.entry, src.hasEntry = f, true
	}
	for _, f := range files.Files() {
		switch f.Language {
		case model.LanguageHTML:
			if !src.hasEntry {
				src.entry, src.hasEntry = f, true
			}
		case model.LanguageCSS:
			styles = append(styles, a.content(f))
		case model.LanguageJavaScript:
			script = append(script, a.content(f))
		}
	}
	src.style = strings.Join(styles, "\n")
	src.script = strings.Join(script, "\n")
	return src
}

// Assemble builds the instrumented document for files. Fragment entries are
// wrapped in the skeleton. It fails with ErrNoEntryMarkup when there is no
// markup file and ErrMalformedMarkup when a complete document lacks its
// </head> or </body> marker.
func (a *Assembler) Assemble(files *model.FileSet, opts instrument.Options) (string, error) {
	src := a.collect(files)
	if !src.hasEntry {
		return "", &Error{Err: ErrNoEntryMarkup, Msg: "add an index.html file"}
	}
	inj := instrument.Inject(src.script, opts)
	if !IsCompleteDocument(src.entry.Content) {
		return fragment(src.entry.Content, src.style, inj, nil), nil
	}
	return complete(src.entry.Name, src.entry.Content, src.style, inj, nil)
}

// AssembleFragment wraps files' entry markup in the skeleton even when it is
// a complete document.
func (a *Assembler) AssembleFragment(files *model.FileSet, opts instrument.Options) (string, error) {
	src := a.collect(files)
	if !src.hasEntry {
		return "", &Error{Err: ErrNoEntryMarkup, Msg: "add an index.html file"}
	}
	return fragment(src.entry.Content, src.style, instrument.Inject(src.script, opts), nil), nil
}

// Build always returns a document. Problems it recovered from are returned
// and also reported inside the document through console.error.
//
// A malformed complete document is rendered as a fragment. A missing entry
// file yields a placeholder page that still runs the project's scripts.
func (a *Assembler) Build(files *model.FileSet, opts instrument.Options) (string, []error) {
	src := a.collect(files)
	inj := instrument.Inject(src.script, opts)

	if !src.hasEntry {
		err := &Error{Err: ErrNoEntryMarkup, Msg: "add an index.html file"}
		return fragment(Placeholder, src.style, inj, []string{err.Error()}), []error{err}
	}
	if !IsCompleteDocument(src.entry.Content) {
		return fragment(src.entry.Content, src.style, inj, nil), nil
	}
	doc, err := complete(src.entry.Name, src.entry.Content, src.style, inj, nil)
	if err != nil {
		notice := err.Error() + "; rendering it as a fragment"
		return fragment(src.entry.Content, src.style, inj, []string{notice}), []error{err}
	}
	return doc, nil
}

// Standalone builds a downloadable document with no instrumentation. The
// selected libraries are still linked so the page works on its own.
func (a *Assembler) Standalone(files *model.FileSet, libraries []string) (string, error) {
	src := a.collect(files)
	if !src.hasEntry {
		return "", &Error{Err: ErrNoEntryMarkup, Msg: "add an index.html file"}
	}
	inj := instrument.Inject(src.script, instrument.Options{Libraries: libraries})
	if !IsCompleteDocument(src.entry.Content) {
		return fragment(src.entry.Content, src.style, inj, nil), nil
	}
	return complete(src.entry.Name, src.entry.Content, src.style, inj, nil)
}

// Placeholder is the body shown when a project has no markup file.
const Placeholder = `<p>Nothing to preview yet. Add an <code>index.html</code> file.</p>`

func styleTag(css string) string {
	if css == "" {
		return ""
	}
	return "<style>\n" + instrument.EscapeStyle(css) + "\n</style>\n"
}

func scriptTag(js string) string {
	if js == "" {
		return ""
	}
	return "<script>\n" + js + "\n</script>\n"
}

func notices(msgs []string) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(instrument.Notice(m))
	}
	return b.String()
}

func complete(name, markup, style string, inj instrument.Injection, msgs []string) (string, error) {
	m := scan(markup)
	switch {
	case m.headClose < 0:
		return "", &Error{Err: ErrMalformedMarkup, File: name, Msg: "missing </head>"}
	case m.bodyClose < 0:
		return "", &Error{Err: ErrMalformedMarkup, File: name, Msg: "missing </body>"}
	case m.bodyClose < m.headClose:
		return "", &Error{Err: ErrMalformedMarkup, File: name, Msg: "</body> comes before </head>"}
	}
	headAt := m.headOpen
	if headAt < 0 || headAt > m.headClose {
		headAt = m.headClose
	}

	var b strings.Builder
	b.Grow(len(markup) + len(inj.Head) + len(style) + len(inj.Script) + 64)
	b.WriteString(markup[:headAt])
	if inj.Head != "" || len(msgs) > 0 {
		b.WriteByte('\n')
		b.WriteString(inj.Head)
		b.WriteString(notices(msgs))
	}
	b.WriteString(markup[headAt:m.headClose])
	b.WriteString(styleTag(style))
	b.WriteString(markup[m.headClose:m.bodyClose])
	b.WriteString(scriptTag(inj.Script))
	b.WriteString(markup[m.bodyClose:])
	return b.String(), nil
}

func fragment(body, style string, inj instrument.Injection, msgs []string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString(inj.Head)
	b.WriteString(notices(msgs))
	b.WriteString(styleTag(ResetCSS))
	b.WriteString(styleTag(style))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("\n")
	if inj.Script != "" {
		b.WriteString("<script>\ntry {\n")
		b.WriteString(inj.Script)
		b.WriteString("\n} catch (err) {\n")
		b.WriteString("  console.error(err && err.name ? err.name + \": \" + err.message : String(err));\n")
		b.WriteString("}\n</script>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}
