package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newAdminHandler(t *testing.T) (*AdminStoriesHandler, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cave.yaml"), []byte(caveYAML), 0o644); err != nil {
		t.Fatalf("Failed to write story fixture: %v", err)
	}
	store := newStoreForDir(t, dir)
	return NewAdminStoriesHandler(testHandlerLogger(), store, []string{"secret"}), dir
}

func adminRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("X-Admin-Token", "secret")
	return req
}

func TestAdminStoriesHandler_Unauthorized(t *testing.T) {
	handler, _ := newAdminHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/stories", strings.NewReader(caveYAML))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}

func TestAdminStoriesHandler_DisabledWithoutTokens(t *testing.T) {
	dir := t.TempDir()
	handler := NewAdminStoriesHandler(testHandlerLogger(), newStoreForDir(t, dir), nil)

	req := adminRequest(http.MethodPost, "/v1/admin/stories", caveYAML)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with no configured tokens, got %d", rr.Code)
	}
}

func TestAdminStoriesHandler_Import(t *testing.T) {
	dir := t.TempDir()
	handler := NewAdminStoriesHandler(testHandlerLogger(), newStoreForDir(t, dir), []string{"secret"})

	req := adminRequest(http.MethodPost, "/v1/admin/stories", caveYAML)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Response body: %s", rr.Code, rr.Body.String())
	}
	var response ImportResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.ID != "cave" {
		t.Errorf("Expected id cave, got %q", response.ID)
	}
	if _, err := os.Stat(filepath.Join(dir, "cave.yaml")); err != nil {
		t.Errorf("Expected story file on disk: %v", err)
	}

	// Importing again replaces the existing file.
	req = adminRequest(http.MethodPost, "/v1/admin/stories", caveYAML)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 on re-import, got %d", rr.Code)
	}
}

func TestAdminStoriesHandler_ImportInvalid(t *testing.T) {
	dir := t.TempDir()
	handler := NewAdminStoriesHandler(testHandlerLogger(), newStoreForDir(t, dir), []string{"secret"})

	broken := `id: broken
start_scene: nowhere
scenes:
  room:
    text: A room.
    choices:
      - id: out
        text: Out
        next_scene: void
`
	req := adminRequest(http.MethodPost, "/v1/admin/stories", broken)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d. Response body: %s", rr.Code, rr.Body.String())
	}
	var response ValidationErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Errors) == 0 {
		t.Error("Expected validation errors in response")
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.yaml")); !os.IsNotExist(err) {
		t.Error("Invalid story must not be written to disk")
	}
}

func TestAdminStoriesHandler_PutIDMismatch(t *testing.T) {
	handler, _ := newAdminHandler(t)

	req := adminRequest(http.MethodPut, "/v1/admin/stories/other", caveYAML)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 on id mismatch, got %d", rr.Code)
	}
}

func TestAdminStoriesHandler_SceneText(t *testing.T) {
	handler, dir := newAdminHandler(t)

	req := adminRequest(http.MethodPatch, "/v1/admin/stories/cave/scenes/tunnel", `{"text":"The walls drip."}`)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response body: %s", rr.Code, rr.Body.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "cave.yaml"))
	if err != nil {
		t.Fatalf("Failed to read story file: %v", err)
	}
	if !strings.Contains(string(data), "The walls drip.") {
		t.Error("Expected updated scene text on disk")
	}
}

func TestAdminStoriesHandler_SceneTextUnknownScene(t *testing.T) {
	handler, _ := newAdminHandler(t)

	req := adminRequest(http.MethodPatch, "/v1/admin/stories/cave/scenes/nope", `{"text":"x"}`)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestAdminStoriesHandler_AddChoice(t *testing.T) {
	handler, dir := newAdminHandler(t)

	body := `{"id":"shout","text":"Shout into the dark","next_scene":"entrance","effects":[{"add_flag":"echo"}]}`
	req := adminRequest(http.MethodPost, "/v1/admin/stories/cave/scenes/tunnel/choices", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response body: %s", rr.Code, rr.Body.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "cave.yaml"))
	if err != nil {
		t.Fatalf("Failed to read story file: %v", err)
	}
	if !strings.Contains(string(data), "shout") || !strings.Contains(string(data), "add_flag: echo") {
		t.Errorf("Expected new choice on disk, got:\n%s", data)
	}
}

func TestAdminStoriesHandler_AddChoiceDuplicate(t *testing.T) {
	handler, _ := newAdminHandler(t)

	body := `{"id":"press_on","text":"Again","next_scene":"entrance"}`
	req := adminRequest(http.MethodPost, "/v1/admin/stories/cave/scenes/tunnel/choices", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rr.Code)
	}
}

func TestAdminStoriesHandler_AddChoiceDanglingTarget(t *testing.T) {
	handler, _ := newAdminHandler(t)

	body := `{"id":"leap","text":"Leap","next_scene":"the_void"}`
	req := adminRequest(http.MethodPost, "/v1/admin/stories/cave/scenes/tunnel/choices", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422 for dangling next_scene, got %d", rr.Code)
	}
}

func TestAdminStoriesHandler_RemoveChoice(t *testing.T) {
	handler, dir := newAdminHandler(t)

	req := adminRequest(http.MethodDelete, "/v1/admin/stories/cave/scenes/tunnel/choices/turn_back", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response body: %s", rr.Code, rr.Body.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "cave.yaml"))
	if err != nil {
		t.Fatalf("Failed to read story file: %v", err)
	}
	if strings.Contains(string(data), "turn_back") {
		t.Error("Expected choice removed from disk")
	}
}

func TestAdminStoriesHandler_RemoveChoiceMissing(t *testing.T) {
	handler, _ := newAdminHandler(t)

	req := adminRequest(http.MethodDelete, "/v1/admin/stories/cave/scenes/tunnel/choices/nope", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestAdminStoriesHandler_Delete(t *testing.T) {
	handler, dir := newAdminHandler(t)

	req := adminRequest(http.MethodDelete, "/v1/admin/stories/cave", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d. Response body: %s", rr.Code, rr.Body.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "cave.yaml")); !os.IsNotExist(err) {
		t.Error("Expected story file moved away")
	}
	if _, err := os.Stat(filepath.Join(dir, "_deleted", "cave.yaml")); err != nil {
		t.Errorf("Expected story file under _deleted: %v", err)
	}
}

func TestAdminStoriesHandler_Export(t *testing.T) {
	handler, _ := newAdminHandler(t)

	req := adminRequest(http.MethodGet, "/v1/admin/stories/cave/export", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response body: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Expected Content-Type application/yaml, got %s", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "id: cave") || !strings.Contains(body, "has_flag: lantern") {
		t.Errorf("Unexpected export body:\n%s", body)
	}
}
