// Package repository declares the persistence interfaces the services use.
// The sqlite subpackage implements them.
package repository

import (
	"context"

	"github.com/sakif/js-playground/internal/model"
)

// ListOptions pages a listing. A non-positive Limit uses the default page.
type ListOptions struct {
	Limit  int
	Offset int
}

// ProjectRepository stores project save slots. Names are unique per learner.
type ProjectRepository interface {
	Create(ctx context.Context, project *model.Project) error
	GetByID(ctx context.Context, id string) (*model.Project, error)
	ListByLearner(ctx context.Context, learnerID string, opts ListOptions) ([]model.Project, error)
	Update(ctx context.Context, project *model.Project) error
	Delete(ctx context.Context, id string) error
	// Reassign moves every project owned by from to to, used when an
	// anonymous learner signs in. Name clashes keep both, suffixing the
	// moved project's name.
	Reassign(ctx context.Context, from, to string) (int, error)
}

// LearnerRepository stores signed-in learners.
type LearnerRepository interface {
	Upsert(ctx context.Context, learner *model.Learner) error
	GetLearnerByID(ctx context.Context, id string) (*model.Learner, error)
}
