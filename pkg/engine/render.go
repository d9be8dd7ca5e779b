package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Outcome classifies the result of an interpreter operation, so callers
// can tell a missing run from a denied choice from a stale keyboard.
type Outcome string

const (
	// OutcomeOK carries a render of the run's (possibly new) position.
	OutcomeOK Outcome = "ok"
	// OutcomeNotFound means the story, run, scene, or choice could not
	// be resolved.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeConditionsNotMet means the choice exists but its conditions
	// fail against the current flags. A normal branch denial, not an
	// error.
	OutcomeConditionsNotMet Outcome = "conditions_not_met"
	// OutcomeSceneChanged means the submitted choice referenced a scene
	// the run has already left; Render holds the current position.
	OutcomeSceneChanged Outcome = "scene_changed"
	// OutcomeRestartDenied means the story was already finished and does
	// not allow restarts.
	OutcomeRestartDenied Outcome = "restart_denied"
)

// ChoiceOption is one selectable option in a scene render, in
// presentation order.
type ChoiceOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Render is a presentation-agnostic rendering of a run's position:
// either a scene with options or a terminal ending.
type Render struct {
	Position   string         `json:"position"`
	Text       string         `json:"text"`
	Choices    []ChoiceOption `json:"choices,omitempty"`
	Ended      bool           `json:"ended"`
	EndingType string         `json:"ending_type,omitempty"`
}

// Result is the outcome of one interpreter operation.
type Result struct {
	Outcome Outcome   `json:"outcome"`
	RunID   uuid.UUID `json:"run_id,omitempty"`
	Render  *Render   `json:"render,omitempty"`
}

func notFound() Result {
	return Result{Outcome: OutcomeNotFound}
}

// debugSuffix formats the diagnostic block appended to rendered text
// when debug mode is on.
func debugSuffix(position string, runID uuid.UUID, flags map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n[debug] position=%s run=%s", position, runID)
	if len(flags) > 0 {
		names := make([]string, 0, len(flags))
		for name := range flags {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, name+"="+flags[name])
		}
		fmt.Fprintf(&b, " flags=%s", strings.Join(pairs, ","))
	}
	return b.String()
}
