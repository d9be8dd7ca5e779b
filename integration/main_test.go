//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/kosss26/storybot/internal/handlers"
	"github.com/kosss26/storybot/internal/storage"
	"github.com/kosss26/storybot/internal/stories"
	"github.com/kosss26/storybot/pkg/engine"
)

const adminToken = "integration-secret"

const heistYAML = `id: heist
title: The Vault Job
start_scene: lobby
allow_restart: true
scenes:
  lobby:
    text: The bank lobby is quiet. A guard eyes the corridor.
    choices:
      - id: grab_keycard
        text: Lift the keycard from the desk
        next_scene: corridor
        effects:
          - add_flag: keycard
          - increment_counter: risk
      - id: walk_in
        text: Walk straight to the corridor
        next_scene: corridor
        effects:
          - increment_counter: risk
  corridor:
    text: A sealed door blocks the way to the vault.
    choices:
      - id: swipe
        text: Swipe the keycard
        next_scene: vault
        conditions:
          - has_flag: keycard
      - id: retreat
        text: Slip back to the lobby
        next_scene: lobby
      - id: give_up
        text: Walk out empty-handed
        next_scene: busted
  vault:
    text: The vault stands open.
    choices:
      - id: take_gold
        text: Take the gold and run
        next_scene: rich
endings:
  rich:
    text: You made it out rich.
    ending_type: success
  busted:
    text: You left with nothing.
    ending_type: failure
`

// newTestServer wires the full HTTP surface over miniredis and a temp
// stories directory, the same way cmd/api does.
func newTestServer(t *testing.T) (*httptest.Server, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store := storage.NewRedisStore(mr.Addr(), logger)
	t.Cleanup(func() { _ = store.Close() })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "heist.yaml"), []byte(heistYAML), 0o644); err != nil {
		t.Fatalf("Failed to write story fixture: %v", err)
	}
	storyStore := stories.NewStore(dir, logger)
	if err := storyStore.Load(); err != nil {
		t.Fatalf("Failed to load stories: %v", err)
	}

	interpreter := engine.New(storyStore, store, logger)

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(logger, store, storyStore))
	mux.Handle("/v1/play/", handlers.NewPlayHandler(logger, interpreter, store))
	storiesHandler := handlers.NewStoriesHandler(logger, storyStore, interpreter, []string{adminToken})
	mux.Handle("/v1/stories", storiesHandler)
	mux.Handle("/v1/stories/", storiesHandler)
	runsHandler := handlers.NewRunsHandler(logger, store, []string{adminToken})
	mux.Handle("/v1/runs", runsHandler)
	mux.Handle("/v1/runs/", runsHandler)
	adminHandler := handlers.NewAdminStoriesHandler(logger, storyStore, []string{adminToken})
	mux.Handle("/v1/admin/stories", adminHandler)
	mux.Handle("/v1/admin/stories/", adminHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, mr
}

func postJSON(t *testing.T, client *http.Client, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := client.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, buf.Bytes()
}

func decodeResult(t *testing.T, body []byte) engine.Result {
	t.Helper()
	var result engine.Result
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to decode result: %v (%s)", err, body)
	}
	return result
}

func submitChoice(t *testing.T, client *http.Client, baseURL string, result engine.Result, choiceID string) (*http.Response, engine.Result) {
	t.Helper()
	url := fmt.Sprintf("%s/v1/play/%s/choice", baseURL, result.RunID)
	body := fmt.Sprintf(`{"scene_id":%q,"choice_id":%q}`, result.Render.Position, choiceID)
	resp, data := postJSON(t, client, url, body)
	return resp, decodeResult(t, data)
}

func TestFullPlaythrough(t *testing.T) {
	server, _ := newTestServer(t)
	client := server.Client()

	// Health should be green before anything else.
	resp, err := client.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected healthy API, got %d", resp.StatusCode)
	}

	// Start a run.
	resp, body := postJSON(t, client, server.URL+"/v1/play/start",
		`{"user_id":"7","username":"casey","story_id":"heist"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Start failed with %d: %s", resp.StatusCode, body)
	}
	result := decodeResult(t, body)
	if result.Render.Position != "lobby" {
		t.Fatalf("Expected run at lobby, got %s", result.Render.Position)
	}

	// Starting again resumes the same run.
	_, body = postJSON(t, client, server.URL+"/v1/play/start",
		`{"user_id":"7","story_id":"heist"}`)
	resumed := decodeResult(t, body)
	if resumed.RunID != result.RunID {
		t.Fatalf("Expected resumed run %s, got %s", result.RunID, resumed.RunID)
	}

	// Walk in without the keycard; the vault door must refuse.
	_, result = submitChoice(t, client, server.URL, result, "walk_in")
	if result.Render.Position != "corridor" {
		t.Fatalf("Expected corridor, got %s", result.Render.Position)
	}
	resp, denied := submitChoice(t, client, server.URL, result, "swipe")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Denied choice should be 200, got %d", resp.StatusCode)
	}
	if denied.Outcome != engine.OutcomeConditionsNotMet {
		t.Fatalf("Expected conditions_not_met, got %s", denied.Outcome)
	}

	// Go back, grab the keycard, and get through.
	_, result = submitChoice(t, client, server.URL, result, "retreat")
	_, result = submitChoice(t, client, server.URL, result, "grab_keycard")
	_, result = submitChoice(t, client, server.URL, result, "swipe")
	if result.Render.Position != "vault" {
		t.Fatalf("Expected vault, got %s", result.Render.Position)
	}

	// A stale submission against the lobby comes back as a conflict with
	// the real position.
	url := fmt.Sprintf("%s/v1/play/%s/choice", server.URL, result.RunID)
	resp, body = postJSON(t, client, url, `{"scene_id":"lobby","choice_id":"walk_in"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 for stale choice, got %d", resp.StatusCode)
	}
	stale := decodeResult(t, body)
	if stale.Outcome != engine.OutcomeSceneChanged || stale.Render.Position != "vault" {
		t.Fatalf("Expected scene_changed at vault, got %+v", stale)
	}

	// Finish the story.
	_, result = submitChoice(t, client, server.URL, result, "take_gold")
	if !result.Render.Ended || result.Render.EndingType != "success" {
		t.Fatalf("Expected success ending, got %+v", result.Render)
	}

	// The finished run is out of the active list.
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/v1/runs", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/runs failed: %v", err)
	}
	defer resp.Body.Close()
	var active []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&active); err != nil {
		t.Fatalf("Failed to decode runs: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("Expected no active runs after the ending, got %d", len(active))
	}
}

func TestResetAndRestart(t *testing.T) {
	server, _ := newTestServer(t)
	client := server.Client()

	_, body := postJSON(t, client, server.URL+"/v1/play/start",
		`{"user_id":"7","story_id":"heist"}`)
	first := decodeResult(t, body)

	_, first = submitChoice(t, client, server.URL, first, "grab_keycard")

	// Reset wipes the run and its flags.
	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/v1/runs/7/heist", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/runs failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 on reset, got %d", resp.StatusCode)
	}

	_, body = postJSON(t, client, server.URL+"/v1/play/start",
		`{"user_id":"7","story_id":"heist"}`)
	fresh := decodeResult(t, body)
	if fresh.RunID == first.RunID {
		t.Fatal("Expected a new run after reset")
	}
	if fresh.Render.Position != "lobby" {
		t.Fatalf("Expected fresh run at lobby, got %s", fresh.Render.Position)
	}

	// The keycard from the old run must be gone.
	_, fresh = submitChoice(t, client, server.URL, fresh, "walk_in")
	_, denied := submitChoice(t, client, server.URL, fresh, "swipe")
	if denied.Outcome != engine.OutcomeConditionsNotMet {
		t.Fatalf("Expected conditions_not_met on fresh run, got %s", denied.Outcome)
	}
}

func TestAdminEditAndReload(t *testing.T) {
	server, _ := newTestServer(t)
	client := server.Client()

	// Patch the lobby text on disk.
	url := server.URL + "/v1/admin/stories/heist/scenes/lobby"
	req, _ := http.NewRequest(http.MethodPatch, url, strings.NewReader(`{"text":"The lobby smells of fresh paint."}`))
	req.Header.Set("X-Admin-Token", adminToken)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PATCH failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on patch, got %d", resp.StatusCode)
	}

	// The serving index is unchanged until the reload.
	resp, err = client.Get(server.URL + "/v1/stories/heist/scenes/lobby")
	if err != nil {
		t.Fatalf("GET preview failed: %v", err)
	}
	var preview struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&preview); err != nil {
		t.Fatalf("Failed to decode preview: %v", err)
	}
	resp.Body.Close()
	if strings.Contains(preview.Text, "fresh paint") {
		t.Fatal("Edit must not be visible before reload")
	}

	req, _ = http.NewRequest(http.MethodPost, server.URL+"/v1/stories/reload", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("POST reload failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on reload, got %d", resp.StatusCode)
	}

	resp, err = client.Get(server.URL + "/v1/stories/heist/scenes/lobby")
	if err != nil {
		t.Fatalf("GET preview failed: %v", err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&preview); err != nil {
		t.Fatalf("Failed to decode preview: %v", err)
	}
	resp.Body.Close()
	if !strings.Contains(preview.Text, "fresh paint") {
		t.Fatalf("Expected edited text after reload, got %q", preview.Text)
	}
}
