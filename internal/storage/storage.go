package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kosss26/storybot/pkg/run"
)

// ErrRunNotFound is returned by mutations that name a run (or an active
// run for a user/story pair) that does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunStore persists users, runs, and per-run flags. Lookups return
// nil with no error when the record is absent; only storage failures
// surface as errors.
//
// CreateRun does not enforce one-active-run-per-(user,story) on its own;
// callers check GetActiveRun first. The engine serializes that
// check-then-act per user/story pair.
type RunStore interface {
	// Ping tests the storage connection.
	Ping(ctx context.Context) error
	// Close closes the storage connection.
	Close() error

	// EnsureUser creates the user record on first contact and returns it.
	EnsureUser(ctx context.Context, userID, username string) (*run.User, error)

	// CreateRun creates an unfinished run at the given start position.
	CreateRun(ctx context.Context, userID, storyID, startPosition string) (*run.Run, error)
	// GetRun returns a run by id, or nil if it does not exist.
	GetRun(ctx context.Context, id uuid.UUID) (*run.Run, error)
	// GetActiveRun returns the most recently started unfinished run for
	// the user/story pair, or nil.
	GetActiveRun(ctx context.Context, userID, storyID string) (*run.Run, error)
	// ListActiveRuns returns all unfinished runs, most recent first.
	ListActiveRuns(ctx context.Context) ([]*run.Run, error)
	// UpdatePosition moves an unfinished run to a new position.
	UpdatePosition(ctx context.Context, id uuid.UUID, position string) error
	// FinishRun marks a run finished and records the finish time.
	FinishRun(ctx context.Context, id uuid.UUID) error
	// HasFinishedRun reports whether the user ever finished the story.
	HasFinishedRun(ctx context.Context, userID, storyID string) (bool, error)
	// ResetRun deletes the active run for the pair and all its flags as
	// one atomic unit, flags first. Returns ErrRunNotFound when the pair
	// has no active run.
	ResetRun(ctx context.Context, userID, storyID string) error

	// GetFlags returns all flags of a run in one read.
	GetFlags(ctx context.Context, runID uuid.UUID) (map[string]string, error)
	// SetFlag sets one flag value, overwriting any previous value.
	SetFlag(ctx context.Context, runID uuid.UUID, name, value string) error
	// RemoveFlag deletes one flag. Removing an absent flag is a no-op.
	RemoveFlag(ctx context.Context, runID uuid.UUID, name string) error
}
