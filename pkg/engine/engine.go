// Package engine implements the story interpreter: the state machine
// that resolves a run's position to a scene or ending, validates and
// applies choices, and advances runs until they finish.
package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kosss26/storybot/pkg/run"
	"github.com/kosss26/storybot/pkg/story"
)

// StoryProvider resolves story ids to loaded stories. Implemented by
// the stories store; kept narrow so the engine does not depend on the
// loading machinery.
type StoryProvider interface {
	Get(id string) *story.Story
}

// RunStore is the slice of run storage the interpreter drives. The
// engine never caches run or flag state across calls: every operation
// re-fetches, since another request may have mutated the run.
type RunStore interface {
	FlagStore

	CreateRun(ctx context.Context, userID, storyID, startPosition string) (*run.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*run.Run, error)
	GetActiveRun(ctx context.Context, userID, storyID string) (*run.Run, error)
	UpdatePosition(ctx context.Context, id uuid.UUID, position string) error
	FinishRun(ctx context.Context, id uuid.UUID) error
	HasFinishedRun(ctx context.Context, userID, storyID string) (bool, error)
}

// Interpreter orchestrates runs through their stories.
type Interpreter struct {
	stories StoryProvider
	store   RunStore
	applier *Applier
	locks   *keyedLocks
	logger  *slog.Logger
	debug   bool
}

// Option configures the Interpreter.
type Option func(*Interpreter)

// WithDebug appends run diagnostics (position, run id, flags) to
// rendered text. Presentation aid for story authors.
func WithDebug() Option {
	return func(i *Interpreter) {
		i.debug = true
	}
}

// New creates an interpreter over the given story provider and run
// store.
func New(stories StoryProvider, store RunStore, logger *slog.Logger, opts ...Option) *Interpreter {
	i := &Interpreter{
		stories: stories,
		store:   store,
		applier: NewApplier(store, logger),
		locks:   newKeyedLocks(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// StartStory begins (or resumes) a story for a user. If the user
// already has an active run for the story, that run's current position
// is re-rendered instead of creating a duplicate, so repeated
// entry-point triggers are idempotent.
func (i *Interpreter) StartStory(ctx context.Context, userID, storyID string) (Result, error) {
	st := i.stories.Get(storyID)
	if st == nil {
		i.logger.Warn("Story not found", "story_id", storyID)
		return notFound(), nil
	}

	var res Result
	var err error
	// Serializing on the user/story pair closes the check-then-act gap
	// between GetActiveRun and CreateRun.
	i.locks.withLock("start:"+userID+":"+storyID, func() {
		res, err = i.startLocked(ctx, userID, storyID, st)
	})
	return res, err
}

func (i *Interpreter) startLocked(ctx context.Context, userID, storyID string, st *story.Story) (Result, error) {
	active, err := i.store.GetActiveRun(ctx, userID, storyID)
	if err != nil {
		return Result{}, err
	}
	if active != nil {
		i.logger.Info("User already has an active run", "user_id", userID, "story_id", storyID, "run_id", active.ID)
		return i.resolveRun(ctx, active, st)
	}

	if !st.AllowRestart {
		finished, err := i.store.HasFinishedRun(ctx, userID, storyID)
		if err != nil {
			return Result{}, err
		}
		if finished {
			i.logger.Info("Story does not allow restart", "user_id", userID, "story_id", storyID)
			return Result{Outcome: OutcomeRestartDenied}, nil
		}
	}

	if st.StartScene == "" {
		i.logger.Error("Story has no start_scene", "story_id", storyID)
		return notFound(), nil
	}

	rn, err := i.store.CreateRun(ctx, userID, storyID, st.StartScene)
	if err != nil {
		return Result{}, err
	}

	return i.resolveRun(ctx, rn, st)
}

// ContinueStory re-renders a run's current position.
func (i *Interpreter) ContinueStory(ctx context.Context, runID uuid.UUID) (Result, error) {
	var res Result
	var err error
	i.locks.withLock(runID.String(), func() {
		res, err = i.continueLocked(ctx, runID)
	})
	return res, err
}

func (i *Interpreter) continueLocked(ctx context.Context, runID uuid.UUID) (Result, error) {
	rn, err := i.store.GetRun(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	if rn == nil {
		i.logger.Warn("Run not found", "run_id", runID)
		return notFound(), nil
	}

	st := i.stories.Get(rn.StoryID)
	if st == nil {
		i.logger.Warn("Story for run is no longer loaded", "run_id", runID, "story_id", rn.StoryID)
		return notFound(), nil
	}

	return i.resolveRun(ctx, rn, st)
}

// ProcessChoice validates a chosen option, applies its effects, and
// advances the run. The submitted scene id is checked against the run's
// stored position: a mismatch means the client acted on a stale render
// and gets the current position back instead.
func (i *Interpreter) ProcessChoice(ctx context.Context, runID uuid.UUID, sceneID, choiceID string) (Result, error) {
	var res Result
	var err error
	i.locks.withLock(runID.String(), func() {
		res, err = i.processLocked(ctx, runID, sceneID, choiceID)
	})
	return res, err
}

func (i *Interpreter) processLocked(ctx context.Context, runID uuid.UUID, sceneID, choiceID string) (Result, error) {
	rn, err := i.store.GetRun(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	if rn == nil {
		i.logger.Warn("Run not found", "run_id", runID)
		return notFound(), nil
	}

	st := i.stories.Get(rn.StoryID)
	if st == nil {
		i.logger.Warn("Story for run is no longer loaded", "run_id", runID, "story_id", rn.StoryID)
		return notFound(), nil
	}

	scene, ok := st.Scene(sceneID)
	if !ok {
		i.logger.Warn("Scene not found", "run_id", runID, "story_id", rn.StoryID, "scene_id", sceneID)
		return notFound(), nil
	}

	if rn.Finished || rn.Position != sceneID {
		i.logger.Info("Stale choice, re-rendering current position",
			"run_id", runID, "submitted_scene", sceneID, "position", rn.Position)
		res, err := i.resolveRun(ctx, rn, st)
		if err != nil || res.Outcome != OutcomeOK {
			return res, err
		}
		res.Outcome = OutcomeSceneChanged
		return res, nil
	}

	choice, ok := scene.Choice(choiceID)
	if !ok {
		i.logger.Warn("Choice not found in scene", "run_id", runID, "scene_id", sceneID, "choice_id", choiceID)
		return notFound(), nil
	}

	flags, err := i.store.GetFlags(ctx, rn.ID)
	if err != nil {
		return Result{}, err
	}
	if !NewEvaluator(flags, i.logger).Check(choice.Conditions) {
		i.logger.Debug("Choice conditions not met", "run_id", runID, "scene_id", sceneID, "choice_id", choiceID)
		return Result{Outcome: OutcomeConditionsNotMet, RunID: rn.ID}, nil
	}

	i.applier.Apply(ctx, rn.ID, choice.Effects)

	if choice.NextScene == "" {
		i.logger.Error("Choice has no next_scene", "story_id", rn.StoryID, "scene_id", sceneID, "choice_id", choiceID)
		return notFound(), nil
	}

	if err := i.store.UpdatePosition(ctx, rn.ID, choice.NextScene); err != nil {
		return Result{}, err
	}
	rn.Position = choice.NextScene

	return i.resolveRun(ctx, rn, st)
}

// PreviewScene returns a scene's text without touching any run.
func (i *Interpreter) PreviewScene(storyID, sceneID string) (string, bool) {
	st := i.stories.Get(storyID)
	if st == nil {
		return "", false
	}
	scene, ok := st.Scene(sceneID)
	if !ok {
		return "", false
	}
	return scene.Text, true
}

// resolveRun renders the run's current position. Landing on an ending
// finishes the run before rendering; this is the only path that sets
// the finished flag. Re-rendering an already finished run does not
// re-trigger the finish.
func (i *Interpreter) resolveRun(ctx context.Context, rn *run.Run, st *story.Story) (Result, error) {
	if ending, ok := st.Ending(rn.Position); ok {
		if !rn.Finished {
			if err := i.store.FinishRun(ctx, rn.ID); err != nil {
				return Result{}, err
			}
			rn.Finished = true
			i.logger.Info("Run finished at ending", "run_id", rn.ID, "story_id", rn.StoryID, "ending_id", rn.Position)
		}

		endingType := ending.EndingType
		if endingType == "" {
			endingType = story.EndingNeutral
		}

		text := ending.Text
		if i.debug {
			text += i.debugInfo(ctx, rn)
		}

		return Result{
			Outcome: OutcomeOK,
			RunID:   rn.ID,
			Render: &Render{
				Position:   rn.Position,
				Text:       text,
				Ended:      true,
				EndingType: endingType,
			},
		}, nil
	}

	if scene, ok := st.Scene(rn.Position); ok {
		choices := make([]ChoiceOption, 0, len(scene.Choices))
		for _, c := range scene.Choices {
			choices = append(choices, ChoiceOption{ID: c.ID, Text: c.Text})
		}

		text := scene.Text
		if i.debug {
			text += i.debugInfo(ctx, rn)
		}

		return Result{
			Outcome: OutcomeOK,
			RunID:   rn.ID,
			Render: &Render{
				Position: rn.Position,
				Text:     text,
				Choices:  choices,
			},
		}, nil
	}

	i.logger.Error("Run position resolves to neither scene nor ending",
		"run_id", rn.ID, "story_id", rn.StoryID, "position", rn.Position)
	return notFound(), nil
}

func (i *Interpreter) debugInfo(ctx context.Context, rn *run.Run) string {
	flags, err := i.store.GetFlags(ctx, rn.ID)
	if err != nil {
		i.logger.Warn("Failed to load flags for debug info", "run_id", rn.ID, "error", err)
	}
	return debugSuffix(rn.Position, rn.ID, flags)
}
