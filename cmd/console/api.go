package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/kosss26/storybot/pkg/engine"
)

// StorySummary matches one entry of GET /v1/stories.
type StorySummary struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version,omitempty"`
	Scenes  int    `json:"scenes"`
	Endings int    `json:"endings"`
}

// StartRequest matches the API request structure
type StartRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	StoryID  string `json:"story_id"`
}

// ChoiceRequest matches the API request structure
type ChoiceRequest struct {
	SceneID  string `json:"scene_id"`
	ChoiceID string `json:"choice_id"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func listStories(client *http.Client, baseURL string) ([]StorySummary, error) {
	resp, err := client.Get(baseURL + "/v1/stories")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var stories []StorySummary
	if err := json.NewDecoder(resp.Body).Decode(&stories); err != nil {
		return nil, err
	}
	return stories, nil
}

func startStory(client *http.Client, baseURL string, cfg *ConsoleConfig, storyID string) (*engine.Result, error) {
	req := StartRequest{
		UserID:   cfg.UserID,
		Username: cfg.Username,
		StoryID:  storyID,
	}
	return postResult(client, baseURL+"/v1/play/start", req, "failed to start story")
}

func continueRun(client *http.Client, baseURL string, runID uuid.UUID) (*engine.Result, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/play/%s", baseURL, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return decodeResult(resp, "failed to continue run")
}

func submitChoice(client *http.Client, baseURL string, runID uuid.UUID, sceneID, choiceID string) (*engine.Result, error) {
	req := ChoiceRequest{
		SceneID:  sceneID,
		ChoiceID: choiceID,
	}
	return postResult(client, fmt.Sprintf("%s/v1/play/%s/choice", baseURL, runID), req, "failed to submit choice")
}

func resetRun(client *http.Client, baseURL string, cfg *ConsoleConfig, storyID string) error {
	url := fmt.Sprintf("%s/v1/runs/%s/%s", baseURL, cfg.UserID, storyID)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	// A missing run means there was nothing to reset.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return nil
}

func postResult(client *http.Client, url string, payload any, context string) (*engine.Result, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return decodeResult(resp, context)
}

// decodeResult parses a play response. Conflict responses still carry a
// result (a stale choice comes back as the current position), so only
// other non-OK statuses are errors.
func decodeResult(resp *http.Response, context string) (*engine.Result, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("%s: %s", context, errorResp.Error)
	}

	var result engine.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse play response: %w", err)
	}
	return &result, nil
}
