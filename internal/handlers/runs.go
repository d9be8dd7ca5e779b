package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kosss26/storybot/internal/storage"
)

type RunsHandler struct {
	storage storage.RunStore
	logger  *slog.Logger
	tokens  []string
}

func NewRunsHandler(logger *slog.Logger, store storage.RunStore, adminTokens []string) *RunsHandler {
	return &RunsHandler{
		storage: store,
		logger:  logger,
		tokens:  adminTokens,
	}
}

// ServeHTTP handles run administration requests.
// Routes:
// GET    /v1/runs                     - List all active runs (admin)
// DELETE /v1/runs/{userID}/{storyID}  - Reset a user's active run
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs"), "/")

	switch r.Method {
	case http.MethodGet:
		if path != "" {
			writeError(w, h.logger, http.StatusNotFound, "Not found")
			return
		}
		if !tokenAuthorized(r, h.tokens) {
			writeError(w, h.logger, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.handleList(w, r)

	case http.MethodDelete:
		parts := strings.Split(path, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			writeError(w, h.logger, http.StatusBadRequest, "user ID and story ID are required in URL path")
			return
		}
		h.handleReset(w, r, parts[0], parts[1])

	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *RunsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	runs, err := h.storage.ListActiveRuns(r.Context())
	if err != nil {
		h.logger.Error("Failed to list active runs", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		h.logger.Error("Failed to encode run list", "error", err)
	}
}

func (h *RunsHandler) handleReset(w http.ResponseWriter, r *http.Request, userID, storyID string) {
	err := h.storage.ResetRun(r.Context(), userID, storyID)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "No active run for this user and story")
		return
	}
	if err != nil {
		h.logger.Error("Failed to reset run", "error", err, "user_id", userID, "story_id", storyID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to reset run")
		return
	}
	h.logger.Info("Run reset", "user_id", userID, "story_id", storyID)
	w.WriteHeader(http.StatusNoContent)
}
