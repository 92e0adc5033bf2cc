package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

// Compile-time check that *DB satisfies the interface.
var _ repository.ProjectRepository = (*DB)(nil)

const projectColumns = `id, learner_id, name, files, libraries, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	var (
		p                model.Project
		files, libraries string
	)
	if err := row.Scan(&p.ID, &p.LearnerID, &p.Name, &files, &libraries, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Files = model.NewFileSet()
	if err := json.Unmarshal([]byte(files), p.Files); err != nil {
		return nil, fmt.Errorf("decoding files of project %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(libraries), &p.Libraries); err != nil {
		return nil, fmt.Errorf("decoding libraries of project %s: %w", p.ID, err)
	}
	return &p, nil
}

func encodeProject(p *model.Project) (files, libraries string, err error) {
	fs := p.Files
	if fs == nil {
		fs = model.NewFileSet()
	}
	fb, err := json.Marshal(fs)
	if err != nil {
		return "", "", fmt.Errorf("encoding files: %w", err)
	}
	libs := p.Libraries
	if libs == nil {
		libs = []string{}
	}
	lb, err := json.Marshal(libs)
	if err != nil {
		return "", "", fmt.Errorf("encoding libraries: %w", err)
	}
	return string(fb), string(lb), nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
// modernc.org/sqlite does not export a typed constraint error, so this
// matches on the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a project, assigning its ID and timestamps.
// A learner cannot have two projects with the same name.
func (db *DB) Create(ctx context.Context, project *model.Project) error {
	files, libs, err := encodeProject(project)
	if err != nil {
		return fmt.Errorf("sqlite: creating project: %w", err)
	}

	project.ID = xid.New().String()
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO projects (id, learner_id, name, files, libraries, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.LearnerID, project.Name, files, libs, project.CreatedAt, project.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperror.Conflict("project", project.Name)
	}
	if err != nil {
		return fmt.Errorf("sqlite: creating project: %w", err)
	}
	return nil
}

// GetByID returns the project regardless of owner; ownership is checked by
// the service.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Project, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting project %s: %w", id, err)
	}
	return p, nil
}

// ListByLearner returns a learner's projects, most recently saved first.
func (db *DB) ListByLearner(ctx context.Context, learnerID string, opts repository.ListOptions) ([]model.Project, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+projectColumns+`
		 FROM projects
		 WHERE learner_id = ?
		 ORDER BY updated_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		learnerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects: %w", err)
	}
	defer rows.Close()

	projects := make([]model.Project, 0, limit)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning project row: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating projects: %w", err)
	}
	return projects, nil
}

// Update overwrites a project's name, files and libraries.
func (db *DB) Update(ctx context.Context, project *model.Project) error {
	files, libs, err := encodeProject(project)
	if err != nil {
		return fmt.Errorf("sqlite: updating project %s: %w", project.ID, err)
	}
	project.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE projects
		 SET name = ?, files = ?, libraries = ?, updated_at = ?
		 WHERE id = ?`,
		project.Name, files, libs, project.UpdatedAt, project.ID,
	)
	if isUniqueViolation(err) {
		return apperror.Conflict("project", project.Name)
	}
	if err != nil {
		return fmt.Errorf("sqlite: updating project %s: %w", project.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("project", project.ID)
	}
	return nil
}

// Delete removes a project by id.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting project %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("project", id)
	}
	return nil
}

// Reassign moves every project from one learner to another in a single
// transaction. A moved project whose name is already taken by the target
// gets " (2)", " (3)", ... appended.
func (db *DB) Reassign(ctx context.Context, from, to string) (int, error) {
	if from == to {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reassign projects: %w", err)
	}
	defer tx.Rollback()

	existing, err := projectNames(ctx, tx, to)
	if err != nil {
		return 0, err
	}
	taken := make(map[string]bool, len(existing))
	for _, p := range existing {
		taken[p.name] = true
	}
	moving, err := projectNames(ctx, tx, from)
	if err != nil {
		return 0, err
	}

	for _, p := range moving {
		name := p.name
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s (%d)", p.name, n)
		}
		taken[name] = true

		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET learner_id = ?, name = ? WHERE id = ?`,
			to, name, p.id,
		); err != nil {
			return 0, fmt.Errorf("sqlite: reassign project %s: %w", p.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: reassign projects: %w", err)
	}
	return len(moving), nil
}

type projectName struct{ id, name string }

// projectNames lists learnerID's projects, oldest first.
func projectNames(ctx context.Context, tx *sql.Tx, learnerID string) ([]projectName, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name FROM projects WHERE learner_id = ? ORDER BY created_at, id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing project names: %w", err)
	}
	defer rows.Close()

	var out []projectName
	for rows.Next() {
		var p projectName
		if err := rows.Scan(&p.id, &p.name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning project name: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
