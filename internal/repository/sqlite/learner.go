package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

var _ repository.LearnerRepository = (*DB)(nil)

// Upsert creates the learner for learner.GitHubID, or refreshes its profile
// if one exists. Either way learner.ID is set on return.
func (db *DB) Upsert(ctx context.Context, learner *model.Learner) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM learners WHERE github_id = ?`, learner.GitHubID,
	).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up learner by github_id %d: %w", learner.GitHubID, err)
	}

	now := time.Now()
	if existingID != "" {
		learner.ID = existingID
		learner.UpdatedAt = now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE learners SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			learner.Login, learner.Email, learner.AvatarURL, learner.UpdatedAt, learner.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating learner %s: %w", learner.ID, err)
		}
		return nil
	}

	learner.ID = xid.New().String()
	learner.CreatedAt = now
	learner.UpdatedAt = now
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO learners (id, github_id, login, email, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		learner.ID, learner.GitHubID, learner.Login, learner.Email, learner.AvatarURL,
		learner.CreatedAt, learner.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting learner (githubID=%d): %w", learner.GitHubID, err)
	}
	return nil
}

// GetLearnerByID returns apperror.NotFound for unknown ids.
func (db *DB) GetLearnerByID(ctx context.Context, id string) (*model.Learner, error) {
	var l model.Learner
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, avatar_url, created_at, updated_at
		 FROM learners WHERE id = ?`, id,
	).Scan(&l.ID, &l.GitHubID, &l.Login, &l.Email, &l.AvatarURL, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("learner", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting learner %s: %w", id, err)
	}
	return &l, nil
}
