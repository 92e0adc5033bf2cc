package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/catalog"
	"github.com/sakif/js-playground/internal/grader"
	"github.com/sakif/js-playground/internal/model"
)

// MaxSourceLength bounds a challenge submission.
const MaxSourceLength = 100000

// SubmitResult is what a learner sees after submitting a challenge.
type SubmitResult struct {
	ChallengeID string             `json:"challengeId"`
	Results     []model.TestResult `json:"results"`
	Passed      bool               `json:"passed"`
	// NewlyCompleted is true the first time a learner passes the challenge.
	NewlyCompleted bool `json:"newlyCompleted"`
}

// ChallengeService grades submissions and records completions.
type ChallengeService struct {
	catalog  *catalog.Catalog
	grader   *grader.Grader
	progress *ProgressService
	logger   *slog.Logger
}

// NewChallengeService returns a ChallengeService.
func NewChallengeService(cat *catalog.Catalog, g *grader.Grader, progress *ProgressService, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{catalog: cat, grader: g, progress: progress, logger: logger}
}

// Submit grades source against the challenge's tests. When every test
// passes the challenge is added to the learner's completed set.
func (s *ChallengeService) Submit(ctx context.Context, learnerID, challengeID, source string) (*SubmitResult, error) {
	ch, err := s.catalog.Challenge(challengeID)
	if err != nil {
		return nil, err
	}
	if len(source) > MaxSourceLength {
		return nil, apperror.ValidationFailed("source",
			fmt.Sprintf("code must be %d characters or less", MaxSourceLength))
	}

	results, err := s.grader.Grade(ctx, ch, source)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Error("grading failed",
			slog.String("challenge", challengeID),
			slog.String("engine", s.grader.Engine()),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unavailable("the grader is unavailable, try again shortly", err)
	}

	res := &SubmitResult{
		ChallengeID: challengeID,
		Results:     results,
		Passed:      grader.AllPassed(results),
	}
	if res.Passed {
		res.NewlyCompleted, err = s.progress.CompleteChallenge(ctx, learnerID, challengeID)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("challenge graded",
		slog.String("challenge", challengeID),
		slog.String("learnerID", learnerID),
		slog.Bool("passed", res.Passed),
	)
	return res, nil
}
