package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/catalog"
	"github.com/sakif/js-playground/internal/store"
)

// Keys stored under each learner's namespace.
const (
	KeyTheme               = "theme"
	KeyWarningSeen         = "playground-warning-seen"
	KeyCompletedChallenges = "completedChallenges"
	KeyCompletedLessons    = "completedLessons"
)

// Themes a learner can pick.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Progress is everything remembered about a learner between visits.
type Progress struct {
	Theme               string   `json:"theme"`
	WarningSeen         bool     `json:"playgroundWarningSeen"`
	CompletedChallenges []string `json:"completedChallenges"`
	CompletedLessons    []string `json:"completedLessons"`
}

// ProgressService reads and writes learner progress in a store.Store.
type ProgressService struct {
	store   store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger

	// Serialises read-modify-write of the completion sets.
	mu sync.Mutex
}

// NewProgressService stores progress in st.
func NewProgressService(st store.Store, cat *catalog.Catalog, logger *slog.Logger) *ProgressService {
	return &ProgressService{store: st, catalog: cat, logger: logger}
}

func learnerKey(learnerID, key string) string {
	return "learner:" + learnerID + ":" + key
}

// Get returns a learner's progress. A learner with nothing stored gets the
// dark theme and empty sets.
func (s *ProgressService) Get(ctx context.Context, learnerID string) (*Progress, error) {
	p := &Progress{Theme: ThemeDark, CompletedChallenges: []string{}, CompletedLessons: []string{}}

	theme, ok, err := s.store.Get(ctx, learnerKey(learnerID, KeyTheme))
	if err != nil {
		return nil, fmt.Errorf("service/progress: reading theme: %w", err)
	}
	if ok {
		p.Theme = theme
	}

	seen, ok, err := s.store.Get(ctx, learnerKey(learnerID, KeyWarningSeen))
	if err != nil {
		return nil, fmt.Errorf("service/progress: reading warning flag: %w", err)
	}
	p.WarningSeen = ok && seen == "true"

	if p.CompletedChallenges, err = s.readSet(ctx, learnerID, KeyCompletedChallenges); err != nil {
		return nil, err
	}
	if p.CompletedLessons, err = s.readSet(ctx, learnerID, KeyCompletedLessons); err != nil {
		return nil, err
	}
	return p, nil
}

// SetTheme stores the learner's theme. Only dark and light are accepted.
func (s *ProgressService) SetTheme(ctx context.Context, learnerID, theme string) error {
	if theme != ThemeDark && theme != ThemeLight {
		return apperror.ValidationFailed("theme", `theme must be "dark" or "light"`)
	}
	if err := s.store.Set(ctx, learnerKey(learnerID, KeyTheme), theme); err != nil {
		return fmt.Errorf("service/progress: writing theme: %w", err)
	}
	return nil
}

// MarkWarningSeen records that the learner dismissed the first-run warning.
func (s *ProgressService) MarkWarningSeen(ctx context.Context, learnerID string) error {
	if err := s.store.Set(ctx, learnerKey(learnerID, KeyWarningSeen), "true"); err != nil {
		return fmt.Errorf("service/progress: writing warning flag: %w", err)
	}
	return nil
}

// CompleteChallenge adds a challenge to the learner's completed set. It
// reports whether the set changed; completing twice is not an error.
func (s *ProgressService) CompleteChallenge(ctx context.Context, learnerID, challengeID string) (bool, error) {
	if _, err := s.catalog.Challenge(challengeID); err != nil {
		return false, err
	}
	return s.addToSet(ctx, learnerID, KeyCompletedChallenges, challengeID)
}

// CompleteLesson adds a lesson to the learner's completed set.
func (s *ProgressService) CompleteLesson(ctx context.Context, learnerID, lessonID string) (bool, error) {
	if _, err := s.catalog.Lesson(lessonID); err != nil {
		return false, err
	}
	return s.addToSet(ctx, learnerID, KeyCompletedLessons, lessonID)
}

// Merge folds from's progress into to's and removes from's keys. Completion
// sets are unioned; to's theme wins when both have one.
func (s *ProgressService) Merge(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{KeyCompletedChallenges, KeyCompletedLessons} {
		src, err := s.readSet(ctx, from, key)
		if err != nil {
			return err
		}
		if len(src) == 0 {
			continue
		}
		dst, err := s.readSet(ctx, to, key)
		if err != nil {
			return err
		}
		for _, id := range src {
			if !slices.Contains(dst, id) {
				dst = append(dst, id)
			}
		}
		if err := s.writeSet(ctx, to, key, dst); err != nil {
			return err
		}
	}

	theme, ok, err := s.store.Get(ctx, learnerKey(from, KeyTheme))
	if err != nil {
		return fmt.Errorf("service/progress: reading theme: %w", err)
	}
	if ok {
		if _, exists, err := s.store.Get(ctx, learnerKey(to, KeyTheme)); err != nil {
			return fmt.Errorf("service/progress: reading theme: %w", err)
		} else if !exists {
			if err := s.store.Set(ctx, learnerKey(to, KeyTheme), theme); err != nil {
				return fmt.Errorf("service/progress: writing theme: %w", err)
			}
		}
	}

	if seen, ok, err := s.store.Get(ctx, learnerKey(from, KeyWarningSeen)); err != nil {
		return fmt.Errorf("service/progress: reading warning flag: %w", err)
	} else if ok && seen == "true" {
		if err := s.store.Set(ctx, learnerKey(to, KeyWarningSeen), "true"); err != nil {
			return fmt.Errorf("service/progress: writing warning flag: %w", err)
		}
	}

	for _, key := range []string{KeyTheme, KeyWarningSeen, KeyCompletedChallenges, KeyCompletedLessons} {
		if err := s.store.Delete(ctx, learnerKey(from, key)); err != nil {
			return fmt.Errorf("service/progress: clearing %s: %w", key, err)
		}
	}

	s.logger.Info("progress merged",
		slog.String("from", from),
		slog.String("to", to),
	)
	return nil
}

func (s *ProgressService) addToSet(ctx context.Context, learnerID, key, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.readSet(ctx, learnerID, key)
	if err != nil {
		return false, err
	}
	if slices.Contains(set, id) {
		return false, nil
	}
	if err := s.writeSet(ctx, learnerID, key, append(set, id)); err != nil {
		return false, err
	}
	return true, nil
}

// readSet decodes a stored JSON array. A corrupt value reads as empty and is
// overwritten by the next write.
func (s *ProgressService) readSet(ctx context.Context, learnerID, key string) ([]string, error) {
	raw, ok, err := s.store.Get(ctx, learnerKey(learnerID, key))
	if err != nil {
		return nil, fmt.Errorf("service/progress: reading %s: %w", key, err)
	}
	set := []string{}
	if !ok {
		return set, nil
	}
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		s.logger.Warn("discarding corrupt progress value",
			slog.String("learnerID", learnerID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return []string{}, nil
	}
	if set == nil {
		set = []string{}
	}
	return set, nil
}

func (s *ProgressService) writeSet(ctx context.Context, learnerID, key string, set []string) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("service/progress: encoding %s: %w", key, err)
	}
	if err := s.store.Set(ctx, learnerKey(learnerID, key), string(raw)); err != nil {
		return fmt.Errorf("service/progress: writing %s: %w", key, err)
	}
	return nil
}
