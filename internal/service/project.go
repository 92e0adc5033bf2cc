package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/instrument"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

const (
	MaxProjectNameLength = 100
	MaxProjectFiles      = 50
	MaxFileNameLength    = 255
	MaxProjectBytes      = 1 << 20
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// ProjectService manages a learner's saved projects and the export file
// format.
type ProjectService struct {
	repo   repository.ProjectRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewProjectService returns a ProjectService backed by repo.
func NewProjectService(repo repository.ProjectRepository, logger *slog.Logger) *ProjectService {
	return &ProjectService{repo: repo, logger: logger, now: time.Now}
}

// ValidateFiles checks a file set before it is stored or run.
func ValidateFiles(files *model.FileSet) error {
	if files == nil {
		return apperror.ValidationFailed("files", "files is required")
	}
	if files.Len() > MaxProjectFiles {
		return apperror.ValidationFailed("files",
			fmt.Sprintf("a project can have at most %d files", MaxProjectFiles))
	}
	total := 0
	for _, f := range files.Files() {
		if err := ValidateFileName(f.Name); err != nil {
			return err
		}
		if !f.Language.Valid() {
			return apperror.ValidationFailed("files",
				fmt.Sprintf("file %q has unknown language %q", f.Name, f.Language))
		}
		total += len(f.Content)
	}
	if total > MaxProjectBytes {
		return apperror.ValidationFailed("files",
			fmt.Sprintf("project files must total %d bytes or less", MaxProjectBytes))
	}
	return nil
}

// ValidateFileName rejects empty, overlong and path-like names. Files are
// flat; a name is never a path.
func ValidateFileName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperror.ValidationFailed("name", "file name is required")
	case len(name) > MaxFileNameLength:
		return apperror.ValidationFailed("name",
			fmt.Sprintf("file name must be %d characters or less", MaxFileNameLength))
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return apperror.ValidationFailed("name", fmt.Sprintf("file name %q must not be a path", name))
	}
	return nil
}

func validateProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "project name is required")
	}
	if len(name) > MaxProjectNameLength {
		return "", apperror.ValidationFailed("name",
			fmt.Sprintf("project name must be %d characters or less", MaxProjectNameLength))
	}
	return name, nil
}

// Save creates a project for the learner.
func (s *ProjectService) Save(ctx context.Context, learnerID, name string, files *model.FileSet, libraries []string) (*model.Project, error) {
	name, err := validateProjectName(name)
	if err != nil {
		return nil, err
	}
	if err := ValidateFiles(files); err != nil {
		return nil, err
	}

	project := &model.Project{
		LearnerID: learnerID,
		Name:      name,
		Files:     files.Clone(),
		Libraries: instrument.Known(libraries),
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("project saved",
		slog.String("id", project.ID),
		slog.String("learnerID", learnerID),
		slog.String("name", project.Name),
	)
	return project, nil
}

// Get returns a project the learner owns. Someone else's project reads as
// missing.
func (s *ProjectService) Get(ctx context.Context, learnerID, id string) (*model.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "project ID is required")
	}
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.LearnerID != learnerID {
		return nil, apperror.NotFound("project", id)
	}
	return project, nil
}

// List returns the learner's projects, most recently updated first.
func (s *ProjectService) List(ctx context.Context, learnerID string, limit, offset int) ([]model.Project, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	projects, err := s.repo.ListByLearner(ctx, learnerID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list projects", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// ProjectUpdate carries the fields to change. Nil fields are left alone.
type ProjectUpdate struct {
	Name      *string
	Files     *model.FileSet
	Libraries []string
}

// Update applies the non-nil fields of upd.
func (s *ProjectService) Update(ctx context.Context, learnerID, id string, upd ProjectUpdate) (*model.Project, error) {
	project, err := s.Get(ctx, learnerID, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		if project.Name, err = validateProjectName(*upd.Name); err != nil {
			return nil, err
		}
	}
	if upd.Files != nil {
		if err := ValidateFiles(upd.Files); err != nil {
			return nil, err
		}
		project.Files = upd.Files.Clone()
	}
	if upd.Libraries != nil {
		project.Libraries = instrument.Known(upd.Libraries)
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project updated", slog.String("id", project.ID))
	return project, nil
}

// Delete removes one of the learner's projects.
func (s *ProjectService) Delete(ctx context.Context, learnerID, id string) error {
	if _, err := s.Get(ctx, learnerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("project deleted", slog.String("id", id))
	return nil
}

// Export builds the downloadable form of a stored project.
func (s *ProjectService) Export(ctx context.Context, learnerID, id string) (*model.ProjectExport, error) {
	project, err := s.Get(ctx, learnerID, id)
	if err != nil {
		return nil, err
	}
	return s.ExportFiles(project.Name, project.Files, project.Libraries), nil
}

// ExportFiles builds an export for files that were never saved, such as a
// live workspace.
func (s *ProjectService) ExportFiles(name string, files *model.FileSet, libraries []string) *model.ProjectExport {
	if strings.TrimSpace(name) == "" {
		name = "Untitled"
	}
	return &model.ProjectExport{
		Name:      name,
		Version:   model.ProjectExportVersion,
		Created:   s.now().UTC().Format(time.RFC3339),
		Files:     files.Clone(),
		Libraries: libraries,
	}
}

// ParseExport decodes an export file. The files key is required; name
// defaults to "Imported project" and unknown libraries are dropped.
func ParseExport(data []byte) (*model.ProjectExport, error) {
	var exp model.ProjectExport
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&exp); err != nil {
		return nil, apperror.ValidationFailed("body", "project file is not valid JSON: "+err.Error())
	}
	if exp.Files == nil {
		return nil, apperror.ValidationFailed("files", "project file has no files")
	}
	if err := ValidateFiles(exp.Files); err != nil {
		return nil, err
	}
	if strings.TrimSpace(exp.Name) == "" {
		exp.Name = "Imported project"
	}
	exp.Libraries = instrument.Known(exp.Libraries)
	return &exp, nil
}

// Import saves an export file as a new project.
func (s *ProjectService) Import(ctx context.Context, learnerID string, data []byte) (*model.Project, error) {
	exp, err := ParseExport(data)
	if err != nil {
		return nil, err
	}
	return s.Save(ctx, learnerID, exp.Name, exp.Files, exp.Libraries)
}
