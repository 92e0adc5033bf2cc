// Package catalog holds the read-only learning content: lessons, graded
// challenges and starter templates. It is loaded once at start-up from YAML,
// either the copy embedded in the binary or a file named by CATALOG_PATH,
// and validated before the server accepts requests.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/model"
)

//go:embed content.yaml
var embedded []byte

// Difficulties a challenge may declare.
var Difficulties = []string{"easy", "medium", "hard"}

type document struct {
	Lessons    []model.Lesson    `yaml:"lessons"`
	Challenges []model.Challenge `yaml:"challenges"`
	Templates  []templateDoc     `yaml:"templates"`
}

type templateDoc struct {
	ID    string    `yaml:"id"`
	Name  string    `yaml:"name"`
	Files []fileDoc `yaml:"files"`
}

type fileDoc struct {
	Name     string         `yaml:"name"`
	Language model.Language `yaml:"language"`
	Content  string         `yaml:"content"`
}

// Catalog is immutable after Load. Accessors return copies.
type Catalog struct {
	lessons    []model.Lesson
	challenges []model.Challenge
	templates  []model.Template
}

// Default loads the embedded catalog.
func Default() (*Catalog, error) {
	return Load(embedded)
}

// LoadFile loads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	return Load(data)
}

// Load parses and validates a YAML catalog.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parsing: %w", err)
	}

	policy := bluemonday.UGCPolicy()
	c := &Catalog{}
	var problems []error

	seen := map[string]bool{}
	for _, l := range doc.Lessons {
		if err := checkID("lesson", l.ID, seen); err != nil {
			problems = append(problems, err)
			continue
		}
		if strings.TrimSpace(l.Title) == "" {
			problems = append(problems, fmt.Errorf("lesson %q: title is required", l.ID))
		}
		l.Body = policy.Sanitize(l.Body)
		c.lessons = append(c.lessons, l)
	}

	seen = map[string]bool{}
	for _, ch := range doc.Challenges {
		if err := checkID("challenge", ch.ID, seen); err != nil {
			problems = append(problems, err)
			continue
		}
		problems = append(problems, validateChallenge(ch)...)
		c.challenges = append(c.challenges, ch)
	}

	seen = map[string]bool{}
	for _, td := range doc.Templates {
		if err := checkID("template", td.ID, seen); err != nil {
			problems = append(problems, err)
			continue
		}
		t, errs := buildTemplate(td)
		problems = append(problems, errs...)
		c.templates = append(c.templates, t)
	}

	if err := errors.Join(problems...); err != nil {
		return nil, fmt.Errorf("catalog: invalid content:\n%w", err)
	}
	return c, nil
}

func checkID(kind, id string, seen map[string]bool) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s with empty id", kind)
	}
	if seen[id] {
		return fmt.Errorf("%s %q: duplicate id", kind, id)
	}
	seen[id] = true
	return nil
}

func validateChallenge(ch model.Challenge) []error {
	var errs []error
	if !executor.ValidEntry(ch.Entry) {
		errs = append(errs, fmt.Errorf("challenge %q: entry %q is not a valid function name", ch.ID, ch.Entry))
	}
	if len(ch.Tests) == 0 {
		errs = append(errs, fmt.Errorf("challenge %q: needs at least one test", ch.ID))
	}
	valid := false
	for _, d := range Difficulties {
		valid = valid || ch.Difficulty == d
	}
	if !valid {
		errs = append(errs, fmt.Errorf("challenge %q: difficulty %q must be one of %v", ch.ID, ch.Difficulty, Difficulties))
	}
	return errs
}

func buildTemplate(td templateDoc) (model.Template, []error) {
	var errs []error
	fs := model.NewFileSet()
	for _, f := range td.Files {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("template %q: file with empty name", td.ID))
			continue
		}
		if _, dup := fs.Get(f.Name); dup {
			errs = append(errs, fmt.Errorf("template %q: duplicate file %q", td.ID, f.Name))
			continue
		}
		if f.Language != "" && !f.Language.Valid() {
			errs = append(errs, fmt.Errorf("template %q: file %q has unknown language %q", td.ID, f.Name, f.Language))
			continue
		}
		fs.Set(model.VirtualFile{Name: f.Name, Content: f.Content, Language: f.Language})
	}
	if fs.Len() == 0 {
		errs = append(errs, fmt.Errorf("template %q: has no files", td.ID))
	}
	return model.Template{ID: td.ID, Name: td.Name, Files: fs}, errs
}

// Lessons returns every lesson in catalog order.
func (c *Catalog) Lessons() []model.Lesson {
	return append([]model.Lesson(nil), c.lessons...)
}

// Lesson looks a lesson up by id.
func (c *Catalog) Lesson(id string) (model.Lesson, error) {
	for _, l := range c.lessons {
		if l.ID == id {
			return l, nil
		}
	}
	return model.Lesson{}, apperror.NotFound("lesson", id)
}

// Challenges returns every challenge in catalog order.
func (c *Catalog) Challenges() []model.Challenge {
	return append([]model.Challenge(nil), c.challenges...)
}

// Challenge looks a challenge up by id.
func (c *Catalog) Challenge(id string) (model.Challenge, error) {
	for _, ch := range c.challenges {
		if ch.ID == id {
			return ch, nil
		}
	}
	return model.Challenge{}, apperror.NotFound("challenge", id)
}

// Templates returns every template. File sets are copies.
func (c *Catalog) Templates() []model.Template {
	out := make([]model.Template, len(c.templates))
	for i, t := range c.templates {
		out[i] = model.Template{ID: t.ID, Name: t.Name, Files: t.Files.Clone()}
	}
	return out
}

// Template returns the named template with a private copy of its files.
func (c *Catalog) Template(id string) (model.Template, error) {
	for _, t := range c.templates {
		if t.ID == id {
			return model.Template{ID: t.ID, Name: t.Name, Files: t.Files.Clone()}, nil
		}
	}
	return model.Template{}, apperror.NotFound("template", id)
}
