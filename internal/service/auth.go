// Package service holds the playground's business logic between the HTTP
// handlers and storage.
//
// Services validate input, return *apperror.AppError for anything the caller
// got wrong, and wrap everything else with fmt.Errorf("...: %w").
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/js-playground/internal/auth"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

// AuthService signs learners in and carries their anonymous work over.
type AuthService struct {
	learners repository.LearnerRepository
	projects repository.ProjectRepository
	progress *ProgressService
	tokens   *auth.TokenService
	logger   *slog.Logger
}

// NewAuthService returns an AuthService.
func NewAuthService(
	learners repository.LearnerRepository,
	projects repository.ProjectRepository,
	progress *ProgressService,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		learners: learners,
		projects: projects,
		progress: progress,
		tokens:   tokens,
		logger:   logger,
	}
}

// AuthResult is a signed-in learner and their new session token.
type AuthResult struct {
	Learner *model.Learner
	Token   string
}

// LoginOrRegisterGitHub finds or creates the learner for a GitHub account
// and issues a session token. When the request came from an anonymous
// learner, their progress and projects move to the account.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, current auth.Identity, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	learner := &model.Learner{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.learners.Upsert(ctx, learner); err != nil {
		return nil, fmt.Errorf("service/auth: upserting learner (githubID=%d): %w", ghUser.ID, err)
	}

	if current.Anonymous && current.LearnerID != "" && current.LearnerID != learner.ID {
		if err := s.progress.Merge(ctx, current.LearnerID, learner.ID); err != nil {
			return nil, fmt.Errorf("service/auth: merging progress: %w", err)
		}
		moved, err := s.projects.Reassign(ctx, current.LearnerID, learner.ID)
		if err != nil {
			return nil, fmt.Errorf("service/auth: moving projects: %w", err)
		}
		s.logger.Info("anonymous work carried over",
			slog.String("from", current.LearnerID),
			slog.String("to", learner.ID),
			slog.Int("projects", moved),
		)
	}

	s.logger.Info("learner authenticated via GitHub",
		slog.String("learnerID", learner.ID),
		slog.String("login", learner.Login),
	)

	token, err := s.tokens.Issue(auth.Identity{LearnerID: learner.ID})
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for learner %s: %w", learner.ID, err)
	}

	return &AuthResult{Learner: learner, Token: token}, nil
}

// GetLearner returns a signed-in learner's profile.
func (s *AuthService) GetLearner(ctx context.Context, id string) (*model.Learner, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: learner ID must not be empty")
	}
	learner, err := s.learners.GetLearnerByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching learner %s: %w", id, err)
	}
	return learner, nil
}
