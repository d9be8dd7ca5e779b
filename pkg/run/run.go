// Package run defines the persisted records of a user's progress
// through a story: the run itself and the user who owns it. Flags are
// stored alongside the run by the storage layer and never leak across
// runs.
package run

import (
	"time"

	"github.com/google/uuid"
)

// User is a chat user known to the service.
type User struct {
	ID        string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one user's attempt at one story. Position is the id of the
// scene or ending the run currently occupies. A finished run is never
// mutated again; reset deletes it outright.
type Run struct {
	ID         uuid.UUID  `json:"run_id"`
	UserID     string     `json:"user_id"`
	StoryID    string     `json:"story_id"`
	Position   string     `json:"current_scene"`
	Finished   bool       `json:"is_finished"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// New creates an unfinished run positioned at the story's start.
func New(userID, storyID, startPosition string) *Run {
	return &Run{
		ID:        uuid.New(),
		UserID:    userID,
		StoryID:   storyID,
		Position:  startPosition,
		StartedAt: time.Now().UTC(),
	}
}
