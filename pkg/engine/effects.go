package engine

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/kosss26/storybot/pkg/story"
)

// FlagStore is the slice of run storage the effect applier mutates.
type FlagStore interface {
	GetFlags(ctx context.Context, runID uuid.UUID) (map[string]string, error)
	SetFlag(ctx context.Context, runID uuid.UUID, name, value string) error
	RemoveFlag(ctx context.Context, runID uuid.UUID, name string) error
}

// Applier mutates a run's flags in response to a taken choice.
type Applier struct {
	store  FlagStore
	logger *slog.Logger
}

// NewApplier creates an effect applier over the given flag store.
func NewApplier(store FlagStore, logger *slog.Logger) *Applier {
	return &Applier{store: store, logger: logger}
}

// Apply runs every effect in list order. Each mutation commits
// independently: a failed effect is logged and the rest still apply.
// Flag writes are idempotent-ish, so no rollback is attempted.
func (a *Applier) Apply(ctx context.Context, runID uuid.UUID, effects []story.Effect) {
	for _, e := range effects {
		if err := a.applyOne(ctx, runID, e); err != nil {
			a.logger.Error("Failed to apply effect", "run_id", runID, "kind", e.Kind, "flag", e.Flag, "error", err)
		}
	}
}

func (a *Applier) applyOne(ctx context.Context, runID uuid.UUID, e story.Effect) error {
	switch e.Kind {
	case story.EffectAddFlag:
		return a.store.SetFlag(ctx, runID, e.Flag, story.FlagPresentValue)

	case story.EffectRemoveFlag:
		return a.store.RemoveFlag(ctx, runID, e.Flag)

	case story.EffectSetFlag:
		return a.store.SetFlag(ctx, runID, e.Flag, e.Value)

	case story.EffectIncrementCounter:
		flags, err := a.store.GetFlags(ctx, runID)
		if err != nil {
			return err
		}
		// Absent or non-numeric counters start over from zero.
		current, err := strconv.Atoi(flags[e.Flag])
		if err != nil && flags[e.Flag] != "" {
			a.logger.Warn("Counter flag is not numeric, resetting", "run_id", runID, "flag", e.Flag, "value", flags[e.Flag])
		}
		if err != nil {
			current = 0
		}
		return a.store.SetFlag(ctx, runID, e.Flag, strconv.Itoa(current+1))

	default:
		// Skip: guessing an unknown effect's meaning is worse than
		// doing nothing.
		a.logger.Warn("Unknown effect kind, skipping", "run_id", runID, "kind", e.Kind, "flag", e.Flag)
		return nil
	}
}
