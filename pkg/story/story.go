package story

// Ending types recognized by authoring tools. The engine passes the type
// through to the presentation layer without interpreting it.
const (
	EndingSuccess = "success"
	EndingFailure = "failure"
	EndingNeutral = "neutral"
)

// Story is one branching narrative, loaded from a YAML definition.
// Stories are immutable after load; editing happens against the source
// files and takes effect on the next reload.
type Story struct {
	ID           string            `yaml:"id" json:"id"`
	Title        string            `yaml:"title,omitempty" json:"title,omitempty"`
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	Version      string            `yaml:"version,omitempty" json:"version,omitempty"`
	StartScene   string            `yaml:"start_scene" json:"start_scene"`
	AllowRestart bool              `yaml:"allow_restart,omitempty" json:"allow_restart,omitempty"`
	Scenes       map[string]Scene  `yaml:"scenes" json:"scenes"`
	Endings      map[string]Ending `yaml:"endings,omitempty" json:"endings,omitempty"`
}

// Scene is a single step of the story with an ordered list of choices.
// Choice order is presentation order.
type Scene struct {
	Text    string   `yaml:"text" json:"text"`
	Choices []Choice `yaml:"choices,omitempty" json:"choices,omitempty"`
}

// Choice is one selectable option within a scene. The ID is unique
// within the owning scene only, never globally.
type Choice struct {
	ID         string      `yaml:"id" json:"id"`
	Text       string      `yaml:"text" json:"text"`
	NextScene  string      `yaml:"next_scene" json:"next_scene"`
	Conditions []Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Effects    []Effect    `yaml:"effects,omitempty" json:"effects,omitempty"`
}

// Ending is a terminal position of the story.
type Ending struct {
	Text       string `yaml:"text" json:"text"`
	EndingType string `yaml:"ending_type,omitempty" json:"ending_type,omitempty"`
}

// Scene returns the scene with the given id.
func (s *Story) Scene(id string) (Scene, bool) {
	sc, ok := s.Scenes[id]
	return sc, ok
}

// Ending returns the ending with the given id.
func (s *Story) Ending(id string) (Ending, bool) {
	e, ok := s.Endings[id]
	return e, ok
}

// ResolvesPosition reports whether id names a scene or an ending.
func (s *Story) ResolvesPosition(id string) bool {
	if _, ok := s.Scenes[id]; ok {
		return true
	}
	_, ok := s.Endings[id]
	return ok
}

// Choice returns the choice with the given id within this scene.
func (sc Scene) Choice(id string) (Choice, bool) {
	for _, c := range sc.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}
