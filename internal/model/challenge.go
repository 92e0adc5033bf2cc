package model

// TestCase is one literal input tuple and its expected return value.
type TestCase struct {
	Input       []any  `json:"input"       yaml:"input"`
	Expected    any    `json:"expected"    yaml:"expected"`
	Description string `json:"description" yaml:"description"`
}

// TestResult is the outcome of one TestCase. TestNum 0 is reserved for a
// submission that failed before any test could run.
type TestResult struct {
	TestNum     int    `json:"testNum"`
	Description string `json:"description"`
	Input       []any  `json:"input,omitempty"`
	Expected    any    `json:"expected"`
	Actual      any    `json:"actual,omitempty"`
	ActualText  string `json:"actualText,omitempty"`
	Error       string `json:"error,omitempty"`
	Passed      bool   `json:"passed"`
}

// Challenge is a coding exercise graded by calling Entry with each test's input.
type Challenge struct {
	ID          string     `json:"id"          yaml:"id"`
	Title       string     `json:"title"       yaml:"title"`
	Difficulty  string     `json:"difficulty"  yaml:"difficulty"`
	Description string     `json:"description" yaml:"description"`
	Entry       string     `json:"entry"       yaml:"entry"`
	Starter     string     `json:"starter"     yaml:"starter"`
	Tests       []TestCase `json:"tests"       yaml:"tests"`
}

// Lesson is a documentation page. Body is sanitised HTML.
type Lesson struct {
	ID      string `json:"id"      yaml:"id"`
	Title   string `json:"title"   yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`
	Body    string `json:"body"    yaml:"body"`
}

// Template is a starter project that replaces a workspace's files wholesale.
type Template struct {
	ID    string   `json:"id"    yaml:"id"`
	Name  string   `json:"name"  yaml:"name"`
	Files *FileSet `json:"files" yaml:"-"`
}
