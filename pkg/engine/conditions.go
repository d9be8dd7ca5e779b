package engine

import (
	"log/slog"

	"github.com/kosss26/storybot/pkg/story"
)

// Evaluator checks choice conditions against a single snapshot of a
// run's flags. Construct one per evaluation: the snapshot is read once
// up front so every condition in the list sees the same state.
type Evaluator struct {
	flags  map[string]string
	logger *slog.Logger
}

// NewEvaluator creates an evaluator over a flags snapshot.
func NewEvaluator(flags map[string]string, logger *slog.Logger) *Evaluator {
	return &Evaluator{flags: flags, logger: logger}
}

// Check reports whether every condition holds. An empty list is
// trivially true; evaluation short-circuits on the first failure.
func (e *Evaluator) Check(conditions []story.Condition) bool {
	for _, c := range conditions {
		if !e.checkOne(c) {
			return false
		}
	}
	return true
}

func (e *Evaluator) checkOne(c story.Condition) bool {
	switch c.Kind {
	case story.CondHasFlag:
		_, ok := e.flags[c.Flag]
		return ok
	case story.CondNotHasFlag:
		_, ok := e.flags[c.Flag]
		return !ok
	case story.CondFlagEquals:
		return e.flags[c.Flag] == c.Value
	default:
		// Fail closed: denying a choice is safer than granting one on
		// a condition we cannot interpret.
		e.logger.Warn("Unknown condition kind", "kind", c.Kind, "flag", c.Flag)
		return false
	}
}
