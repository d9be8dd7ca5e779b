package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kosss26/storybot/internal/stories"
	"github.com/kosss26/storybot/pkg/story"
)

// ImportResponse reports a saved story back to the author, including
// validation warnings that did not block the save.
type ImportResponse struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidationErrorResponse is returned when a submitted story fails
// validation.
type ValidationErrorResponse struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// SceneTextRequest updates the text of one scene.
type SceneTextRequest struct {
	Text string `json:"text"`
}

// AdminStoriesHandler mutates story source files. Every change lands on
// disk only; the serving index is untouched until an explicit reload.
type AdminStoriesHandler struct {
	stories *stories.Store
	logger  *slog.Logger
	tokens  []string
}

func NewAdminStoriesHandler(logger *slog.Logger, store *stories.Store, adminTokens []string) *AdminStoriesHandler {
	return &AdminStoriesHandler{
		stories: store,
		logger:  logger,
		tokens:  adminTokens,
	}
}

// ServeHTTP handles story editing requests.
// Routes:
// POST   /v1/admin/stories                                  - Import a story from a YAML body
// PUT    /v1/admin/stories/{id}                             - Replace a story from a YAML body
// DELETE /v1/admin/stories/{id}                             - Move a story to _deleted
// GET    /v1/admin/stories/{id}/export                      - Export canonical YAML
// PATCH  /v1/admin/stories/{id}/scenes/{scene}              - Update scene text
// POST   /v1/admin/stories/{id}/scenes/{scene}/choices      - Add a choice
// DELETE /v1/admin/stories/{id}/scenes/{scene}/choices/{choice} - Remove a choice
func (h *AdminStoriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !tokenAuthorized(r, h.tokens) {
		writeError(w, h.logger, http.StatusUnauthorized, "Unauthorized")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/stories"), "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "" && r.Method == http.MethodPost:
		h.handleImport(w, r, "")

	case len(parts) == 1 && r.Method == http.MethodPut:
		h.handleImport(w, r, parts[0])

	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, parts[0])

	case len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodGet:
		h.handleExport(w, parts[0])

	case len(parts) == 3 && parts[1] == "scenes" && r.Method == http.MethodPatch:
		h.handleSceneText(w, r, parts[0], parts[2])

	case len(parts) == 4 && parts[1] == "scenes" && parts[3] == "choices" && r.Method == http.MethodPost:
		h.handleAddChoice(w, r, parts[0], parts[2])

	case len(parts) == 5 && parts[1] == "scenes" && parts[3] == "choices" && r.Method == http.MethodDelete:
		h.handleRemoveChoice(w, parts[0], parts[2], parts[4])

	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleImport saves a story submitted as YAML. With a path id (PUT)
// the body must name the same story it replaces.
func (h *AdminStoriesHandler) handleImport(w http.ResponseWriter, r *http.Request, pathID string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Failed to read request body")
		return
	}

	st, err := story.Parse(body)
	if err != nil {
		h.logger.Warn("Story import failed to parse", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid story YAML")
		return
	}

	if pathID != "" && st.ID != pathID {
		writeError(w, h.logger, http.StatusBadRequest, "Story id in body does not match URL path")
		return
	}

	res := story.Validate(st)
	if !res.Valid() {
		w.WriteHeader(http.StatusUnprocessableEntity)
		if err := json.NewEncoder(w).Encode(ValidationErrorResponse{Errors: res.Errors, Warnings: res.Warnings}); err != nil {
			h.logger.Error("Failed to encode validation response", "error", err)
		}
		return
	}

	status := http.StatusCreated
	if h.stories.Exists(st.ID) {
		status = http.StatusOK
	}

	if err := h.saveStory(w, st); err != nil {
		return
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ImportResponse{
		ID:       st.ID,
		Summary:  story.Summary(st),
		Warnings: res.Warnings,
	}); err != nil {
		h.logger.Error("Failed to encode import response", "error", err)
	}
}

func (h *AdminStoriesHandler) handleDelete(w http.ResponseWriter, id string) {
	if err := h.stories.Delete(id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, h.logger, http.StatusNotFound, "Story not found")
			return
		}
		h.logger.Error("Failed to delete story", "error", err, "id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete story")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminStoriesHandler) handleExport(w http.ResponseWriter, id string) {
	data, err := h.stories.Export(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, h.logger, http.StatusNotFound, "Story not found")
			return
		}
		h.logger.Error("Failed to export story", "error", err, "id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to export story")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *AdminStoriesHandler) handleSceneText(w http.ResponseWriter, r *http.Request, id, sceneID string) {
	var req SceneTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, h.logger, http.StatusBadRequest, "text is required")
		return
	}

	h.mutateScene(w, id, sceneID, func(sc *story.Scene) bool {
		sc.Text = req.Text
		return true
	})
}

func (h *AdminStoriesHandler) handleAddChoice(w http.ResponseWriter, r *http.Request, id, sceneID string) {
	var choice story.Choice
	if err := json.NewDecoder(r.Body).Decode(&choice); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if choice.ID == "" || choice.NextScene == "" {
		writeError(w, h.logger, http.StatusBadRequest, "choice id and next_scene are required")
		return
	}

	h.mutateScene(w, id, sceneID, func(sc *story.Scene) bool {
		if _, exists := sc.Choice(choice.ID); exists {
			writeError(w, h.logger, http.StatusConflict, "Choice id already exists in scene")
			return false
		}
		sc.Choices = append(sc.Choices, choice)
		return true
	})
}

func (h *AdminStoriesHandler) handleRemoveChoice(w http.ResponseWriter, id, sceneID, choiceID string) {
	h.mutateScene(w, id, sceneID, func(sc *story.Scene) bool {
		for i, c := range sc.Choices {
			if c.ID == choiceID {
				sc.Choices = append(sc.Choices[:i], sc.Choices[i+1:]...)
				return true
			}
		}
		writeError(w, h.logger, http.StatusNotFound, "Choice not found")
		return false
	})
}

// mutateScene loads the on-disk story, applies mutate to the named
// scene, and saves the result. mutate reports whether to proceed; on
// false it has already written the response.
func (h *AdminStoriesHandler) mutateScene(w http.ResponseWriter, id, sceneID string, mutate func(*story.Scene) bool) {
	st, err := h.stories.LoadFromDisk(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, h.logger, http.StatusNotFound, "Story not found")
			return
		}
		h.logger.Error("Failed to load story", "error", err, "id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load story")
		return
	}

	scene, ok := st.Scenes[sceneID]
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "Scene not found")
		return
	}
	if !mutate(&scene) {
		return
	}
	st.Scenes[sceneID] = scene

	if err := h.saveStory(w, st); err != nil {
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ImportResponse{ID: st.ID, Summary: story.Summary(st)}); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// saveStory writes the story and maps failures to responses. A
// validation failure here means the mutation broke an invariant (e.g. a
// new choice pointing at an unknown scene).
func (h *AdminStoriesHandler) saveStory(w http.ResponseWriter, st *story.Story) error {
	if err := h.stories.Save(st); err != nil {
		h.logger.Warn("Failed to save story", "error", err, "id", st.ID)
		if strings.Contains(err.Error(), "failed validation") {
			writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		} else {
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to save story")
		}
		return err
	}
	return nil
}
