package story

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var idCharset = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID strips a story id down to safe filename characters. It
// returns false when the id is empty after sanitizing or smells like a
// path (the story store derives filenames from ids).
func SanitizeID(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", false
	}
	sanitized := idCharset.ReplaceAllString(id, "")
	if sanitized == "" {
		return "", false
	}
	return sanitized, true
}

// ValidationResult separates fatal problems from stylistic ones. A story
// with errors must not be saved or played; warnings are surfaced to the
// author and otherwise ignored.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the story has no fatal problems.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the structural invariants of a story: required fields,
// a resolvable start position, no dangling next_scene targets, and
// scene-scoped choice id uniqueness.
func Validate(s *Story) ValidationResult {
	var res ValidationResult

	if s.ID == "" {
		res.errorf("story is missing required field 'id'")
	}
	if s.Title == "" {
		res.warnf("story is missing field 'title'")
	}
	if s.StartScene == "" {
		res.errorf("story is missing required field 'start_scene'")
	}
	if len(s.Scenes) == 0 {
		res.errorf("story must contain at least one scene")
	}

	if s.StartScene != "" && !s.ResolvesPosition(s.StartScene) {
		res.errorf("start_scene %q does not name a scene or ending", s.StartScene)
	}

	// Scene and ending ids share the position namespace and must not
	// collide: a run's position has to resolve to exactly one of them.
	for id := range s.Scenes {
		if _, dup := s.Endings[id]; dup {
			res.errorf("id %q is declared as both a scene and an ending", id)
		}
	}

	for sceneID, scene := range s.Scenes {
		if scene.Text == "" {
			res.warnf("scene %q has no text", sceneID)
		}

		seen := make(map[string]bool, len(scene.Choices))
		for i, choice := range scene.Choices {
			label := choice.ID
			if label == "" {
				label = fmt.Sprintf("#%d", i+1)
			}

			if choice.ID == "" {
				res.errorf("choice %s in scene %q has no id", label, sceneID)
			} else if seen[choice.ID] {
				res.errorf("choice id %q is duplicated in scene %q", choice.ID, sceneID)
			}
			seen[choice.ID] = true

			if choice.Text == "" {
				res.warnf("choice %s in scene %q has no text", label, sceneID)
			}

			if choice.NextScene == "" {
				res.errorf("choice %s in scene %q has no next_scene", label, sceneID)
			} else if !s.ResolvesPosition(choice.NextScene) {
				res.errorf("choice %s in scene %q leads to unknown scene/ending %q", label, sceneID, choice.NextScene)
			}

			for _, c := range choice.Conditions {
				if !c.Known() {
					res.warnf("choice %s in scene %q uses unknown condition kind %q", label, sceneID, c.Kind)
				}
			}
			for _, e := range choice.Effects {
				if !e.Known() {
					res.warnf("choice %s in scene %q uses unknown effect kind %q", label, sceneID, e.Kind)
				}
			}
		}
	}

	for endingID, ending := range s.Endings {
		if ending.Text == "" {
			res.warnf("ending %q has no text", endingID)
		}
		switch ending.EndingType {
		case "", EndingSuccess, EndingFailure, EndingNeutral:
		default:
			res.warnf("ending %q has nonstandard ending_type %q", endingID, ending.EndingType)
		}
	}

	return res
}

// Parse decodes a single story definition from YAML.
func Parse(data []byte) (*Story, error) {
	var s Story
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse story yaml: %w", err)
	}
	return &s, nil
}

// Marshal renders a story as canonical YAML, the format the story store
// writes and the admin export endpoint returns.
func Marshal(s *Story) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal story yaml: %w", err)
	}
	return data, nil
}

// Summary is a short authoring-facing description of a saved story.
func Summary(s *Story) string {
	title := s.Title
	if title == "" {
		title = "(untitled)"
	}
	version := s.Version
	if version == "" {
		version = "1.0"
	}
	return fmt.Sprintf("story %s (%s, v%s): %d scenes, %d endings",
		s.ID, title, version, len(s.Scenes), len(s.Endings))
}
