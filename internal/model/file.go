// Package model defines the data structures shared across the playground.
//
// Most types here are plain records with JSON tags. The one exception is
// FileSet, which keeps its files in insertion order because the assembler
// concatenates styles and scripts in that order.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Language tags a virtual file with the role it plays in an assembled document.
type Language string

const (
	LanguageHTML       Language = "html"
	LanguageCSS        Language = "css"
	LanguageJavaScript Language = "javascript"
	LanguageJSON       Language = "json"
	LanguageMarkdown   Language = "markdown"
	LanguageOther      Language = "other"
)

// Valid reports whether l is one of the known language tags.
func (l Language) Valid() bool {
	switch l {
	case LanguageHTML, LanguageCSS, LanguageJavaScript, LanguageJSON, LanguageMarkdown, LanguageOther:
		return true
	}
	return false
}

// LanguageFromName guesses a language tag from a file name's extension.
// Unknown extensions map to LanguageOther.
func LanguageFromName(name string) Language {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return LanguageHTML
	case ".css":
		return LanguageCSS
	case ".js", ".mjs", ".cjs":
		return LanguageJavaScript
	case ".json":
		return LanguageJSON
	case ".md", ".markdown":
		return LanguageMarkdown
	default:
		return LanguageOther
	}
}

// VirtualFile is an in-memory named text buffer. It is never backed by disk.
type VirtualFile struct {
	Name     string   `json:"-"`
	Content  string   `json:"content"`
	Language Language `json:"language"`
}

// FileSet is a project's files keyed by unique name, in insertion order.
//
// Set on an existing name replaces the file in place and keeps its position.
// The zero value is an empty, usable set.
type FileSet struct {
	order []string
	files map[string]VirtualFile
}

// NewFileSet builds a FileSet from files, in the order given.
func NewFileSet(files ...VirtualFile) *FileSet {
	fs := &FileSet{}
	for _, f := range files {
		fs.Set(f)
	}
	return fs
}

// Set inserts or replaces a file. An empty language is inferred from the name.
func (fs *FileSet) Set(f VirtualFile) {
	if fs.files == nil {
		fs.files = make(map[string]VirtualFile)
	}
	if f.Language == "" {
		f.Language = LanguageFromName(f.Name)
	}
	if _, ok := fs.files[f.Name]; !ok {
		fs.order = append(fs.order, f.Name)
	}
	fs.files[f.Name] = f
}

// Get returns the named file.
func (fs *FileSet) Get(name string) (VirtualFile, bool) {
	f, ok := fs.files[name]
	return f, ok
}

// Delete removes the named file and reports whether it existed.
func (fs *FileSet) Delete(name string) bool {
	if _, ok := fs.files[name]; !ok {
		return false
	}
	delete(fs.files, name)
	for i, n := range fs.order {
		if n == name {
			fs.order = append(fs.order[:i], fs.order[i+1:]...)
			break
		}
	}
	return true
}

// Rename moves a file to a new name, keeping its position. It fails if the
// source is missing or the target already exists.
func (fs *FileSet) Rename(from, to string) error {
	f, ok := fs.files[from]
	if !ok {
		return fmt.Errorf("file %q does not exist", from)
	}
	if _, exists := fs.files[to]; exists {
		return fmt.Errorf("file %q already exists", to)
	}
	delete(fs.files, from)
	f.Name = to
	fs.files[to] = f
	for i, n := range fs.order {
		if n == from {
			fs.order[i] = to
			break
		}
	}
	return nil
}

// Len returns the number of files.
func (fs *FileSet) Len() int { return len(fs.order) }

// Files returns the files in insertion order.
func (fs *FileSet) Files() []VirtualFile {
	out := make([]VirtualFile, 0, len(fs.order))
	for _, name := range fs.order {
		out = append(out, fs.files[name])
	}
	return out
}

// Clone returns an independent copy. Workspaces hand clones to the
// assembler so edits arriving mid-run never race with it.
func (fs *FileSet) Clone() *FileSet {
	return NewFileSet(fs.Files()...)
}

// MarshalJSON encodes the set as an object keyed by file name, preserving order.
func (fs *FileSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range fs.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fs.files[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by file name, keeping the key order.
func (fs *FileSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("files: expected an object")
	}

	*fs = FileSet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("files: expected a file name")
		}
		var f VirtualFile
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("files: decoding %q: %w", name, err)
		}
		f.Name = name
		fs.Set(f)
	}
	_, err = dec.Token()
	return err
}
