package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/kosss26/storybot/internal/stories"
	"github.com/kosss26/storybot/pkg/engine"
	"github.com/kosss26/storybot/pkg/story"
)

// StorySummary is one entry of the story listing.
type StorySummary struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version,omitempty"`
	Scenes  int    `json:"scenes"`
	Endings int    `json:"endings"`
}

// StoryDetail is the metadata view of one story, without scene bodies.
type StoryDetail struct {
	StorySummary
	Description  string `json:"description,omitempty"`
	StartScene   string `json:"start_scene"`
	AllowRestart bool   `json:"allow_restart"`
}

// ScenePreview is the read-only text of one scene.
type ScenePreview struct {
	StoryID string `json:"story_id"`
	SceneID string `json:"scene_id"`
	Text    string `json:"text"`
}

type StoriesHandler struct {
	stories *stories.Store
	engine  *engine.Interpreter
	logger  *slog.Logger
	tokens  []string
}

func NewStoriesHandler(logger *slog.Logger, store *stories.Store, eng *engine.Interpreter, adminTokens []string) *StoriesHandler {
	return &StoriesHandler{
		stories: store,
		engine:  eng,
		logger:  logger,
		tokens:  adminTokens,
	}
}

// ServeHTTP handles story catalog requests.
// Routes:
// GET  /v1/stories                      - List loaded stories
// GET  /v1/stories/{id}                 - Story metadata
// GET  /v1/stories/{id}/scenes/{scene}  - Preview scene text
// POST /v1/stories/reload               - Reload the store from disk (admin)
func (h *StoriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/stories"), "/")

	if path == "reload" {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if !tokenAuthorized(r, h.tokens) {
			writeError(w, h.logger, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.handleReload(w)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case path == "":
		h.handleList(w)
	case len(parts) == 1:
		h.handleGet(w, parts[0])
	case len(parts) == 3 && parts[1] == "scenes":
		h.handlePreview(w, parts[0], parts[2])
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *StoriesHandler) handleList(w http.ResponseWriter) {
	loaded := h.stories.List()
	ids := make([]string, 0, len(loaded))
	for id := range loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	summaries := make([]StorySummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, summarize(loaded[id]))
	}
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		h.logger.Error("Failed to encode story list", "error", err)
	}
}

func (h *StoriesHandler) handleGet(w http.ResponseWriter, id string) {
	st := h.stories.Get(id)
	if st == nil {
		writeError(w, h.logger, http.StatusNotFound, "Story not found")
		return
	}
	detail := StoryDetail{
		StorySummary: summarize(st),
		Description:  st.Description,
		StartScene:   st.StartScene,
		AllowRestart: st.AllowRestart,
	}
	if err := json.NewEncoder(w).Encode(detail); err != nil {
		h.logger.Error("Failed to encode story detail", "error", err)
	}
}

func (h *StoriesHandler) handlePreview(w http.ResponseWriter, storyID, sceneID string) {
	text, ok := h.engine.PreviewScene(storyID, sceneID)
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "Scene not found")
		return
	}
	preview := ScenePreview{StoryID: storyID, SceneID: sceneID, Text: text}
	if err := json.NewEncoder(w).Encode(preview); err != nil {
		h.logger.Error("Failed to encode scene preview", "error", err)
	}
}

func (h *StoriesHandler) handleReload(w http.ResponseWriter) {
	if err := h.stories.Reload(); err != nil {
		h.logger.Error("Failed to reload stories", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to reload stories")
		return
	}
	h.logger.Info("Stories reloaded", "count", h.stories.Count())
	if err := json.NewEncoder(w).Encode(map[string]int{"loaded": h.stories.Count()}); err != nil {
		h.logger.Error("Failed to encode reload response", "error", err)
	}
}

func summarize(st *story.Story) StorySummary {
	return StorySummary{
		ID:      st.ID,
		Title:   st.Title,
		Version: st.Version,
		Scenes:  len(st.Scenes),
		Endings: len(st.Endings),
	}
}

// tokenAuthorized checks the X-Admin-Token header against the
// configured allow-list. An empty list disables the protected routes.
func tokenAuthorized(r *http.Request, tokens []string) bool {
	token := r.Header.Get("X-Admin-Token")
	if token == "" {
		return false
	}
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}
