package model

import "time"

// Learner is an account that owns progress and saved projects.
//
// Anonymous learners exist only as a signed cookie until they sign in.
// Signing in with GitHub creates (or finds) a row keyed by GitHubID, and the
// anonymous progress is merged into it.
type Learner struct {
	ID        string    `json:"id"`
	GitHubID  int64     `json:"githubId"`
	Login     string    `json:"login"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
