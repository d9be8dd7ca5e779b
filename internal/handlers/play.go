package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kosss26/storybot/internal/storage"
	"github.com/kosss26/storybot/pkg/engine"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// StartRequest begins or resumes a story for a user.
type StartRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	StoryID  string `json:"story_id"`
}

// ChoiceRequest submits one choice against the scene the client is
// showing. The scene id guards against acting on a stale render.
type ChoiceRequest struct {
	SceneID  string `json:"scene_id"`
	ChoiceID string `json:"choice_id"`
}

type PlayHandler struct {
	engine  *engine.Interpreter
	storage storage.RunStore
	logger  *slog.Logger
}

func NewPlayHandler(logger *slog.Logger, eng *engine.Interpreter, store storage.RunStore) *PlayHandler {
	return &PlayHandler{
		engine:  eng,
		storage: store,
		logger:  logger,
	}
}

// ServeHTTP handles play requests.
// Routes:
// POST /v1/play/start           - Start or resume a story
// GET  /v1/play/{runID}         - Re-render the run's current position
// POST /v1/play/{runID}/choice  - Submit a choice
func (h *PlayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/play"), "/")

	if path == "start" {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.handleStart(w, r)
		return
	}

	parts := strings.Split(path, "/")
	runID, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid run ID", "id", parts[0], "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid run ID format")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleContinue(w, r, runID)
	case len(parts) == 2 && parts[1] == "choice" && r.Method == http.MethodPost:
		h.handleChoice(w, r, runID)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *PlayHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.StoryID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "user_id and story_id are required")
		return
	}

	ctx := r.Context()
	if _, err := h.storage.EnsureUser(ctx, req.UserID, req.Username); err != nil {
		h.logger.Error("Failed to ensure user", "error", err, "user_id", req.UserID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to start story")
		return
	}

	result, err := h.engine.StartStory(ctx, req.UserID, req.StoryID)
	if err != nil {
		h.logger.Error("Failed to start story", "error", err, "user_id", req.UserID, "story_id", req.StoryID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to start story")
		return
	}
	h.writeResult(w, result)
}

func (h *PlayHandler) handleContinue(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	result, err := h.engine.ContinueStory(r.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to continue story", "error", err, "run_id", runID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to continue story")
		return
	}
	h.writeResult(w, result)
}

func (h *PlayHandler) handleChoice(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	var req ChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SceneID == "" || req.ChoiceID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "scene_id and choice_id are required")
		return
	}

	result, err := h.engine.ProcessChoice(r.Context(), runID, req.SceneID, req.ChoiceID)
	if err != nil {
		h.logger.Error("Failed to process choice", "error", err, "run_id", runID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to process choice")
		return
	}
	h.writeResult(w, result)
}

// writeResult maps interpreter outcomes to HTTP statuses. A denied
// choice is a normal 200 with its outcome in the body; a stale or
// refused start is a conflict carrying the current state.
func (h *PlayHandler) writeResult(w http.ResponseWriter, result engine.Result) {
	switch result.Outcome {
	case engine.OutcomeNotFound:
		w.WriteHeader(http.StatusNotFound)
	case engine.OutcomeSceneChanged, engine.OutcomeRestartDenied:
		w.WriteHeader(http.StatusConflict)
	default:
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("Failed to encode play response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}
