package stories

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kosss26/storybot/pkg/story"
)

const caveYAML = `id: cave
title: The Cave
start_scene: entrance
allow_restart: true
scenes:
  entrance:
    text: You stand at the mouth of a dark cave.
    choices:
      - id: enter
        text: Step inside
        next_scene: tunnel
        effects:
          - add_flag: brave
      - id: flee
        text: Run away
        next_scene: coward_end
  tunnel:
    text: The tunnel narrows.
    choices:
      - id: press_on
        text: Keep going
        next_scene: hero_end
        conditions:
          - has_flag: brave
endings:
  hero_end:
    text: You found the treasure.
    ending_type: success
  coward_end:
    text: You went home.
    ending_type: failure
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeStory(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write story file: %v", err)
	}
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "cave.yaml", caveYAML)
	writeStory(t, dir, "empty.yaml", "")
	writeStory(t, dir, "noid.yaml", "title: Missing ID\n")
	writeStory(t, dir, "broken.yaml", "scenes: [unclosed\n")
	writeStory(t, dir, "notes.txt", "not a story")

	store := NewStore(dir, testLogger())
	if err := store.Load(); err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	if store.Count() != 1 {
		t.Fatalf("Expected 1 story, got %d", store.Count())
	}

	st := store.Get("cave")
	if st == nil {
		t.Fatal("Expected story 'cave' to be loaded")
	}
	if st.StartScene != "entrance" {
		t.Errorf("Expected start_scene 'entrance', got %q", st.StartScene)
	}
	if len(st.Scenes) != 2 || len(st.Endings) != 2 {
		t.Errorf("Expected 2 scenes and 2 endings, got %d/%d", len(st.Scenes), len(st.Endings))
	}

	// Choice order is preserved.
	entrance := st.Scenes["entrance"]
	if entrance.Choices[0].ID != "enter" || entrance.Choices[1].ID != "flee" {
		t.Errorf("Choice order not preserved: %+v", entrance.Choices)
	}
}

func TestStore_Load_MissingDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope"), testLogger())
	if err := store.Load(); err != nil {
		t.Fatalf("Missing directory should not be fatal: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("Expected empty store, got %d stories", store.Count())
	}
}

func TestStore_Reload(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "cave.yaml", caveYAML)

	store := NewStore(dir, testLogger())
	if err := store.Load(); err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	before := store.Get("cave")
	snapshot := store.List()

	// Edit the file on disk; the index must not change until Reload.
	writeStory(t, dir, "cave.yaml", "id: cave\ntitle: Edited\nstart_scene: e\nscenes:\n  e:\n    text: hi\n")
	if store.Get("cave").Title != "The Cave" {
		t.Error("Index changed without reload")
	}

	if err := store.Reload(); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if store.Get("cave").Title != "Edited" {
		t.Errorf("Expected reloaded title 'Edited', got %q", store.Get("cave").Title)
	}

	// References fetched before the reload are unaffected.
	if before.Title != "The Cave" {
		t.Error("Previously fetched story mutated by reload")
	}
	if snapshot["cave"].Title != "The Cave" {
		t.Error("List snapshot mutated by reload")
	}
}

func TestStore_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger())

	original, err := story.Parse([]byte(caveYAML))
	if err != nil {
		t.Fatalf("Failed to parse fixture: %v", err)
	}

	if err := store.Save(original); err != nil {
		t.Fatalf("Failed to save story: %v", err)
	}

	loaded, err := store.LoadFromDisk("cave")
	if err != nil {
		t.Fatalf("Failed to load saved story: %v", err)
	}

	if !reflect.DeepEqual(original, loaded) {
		t.Errorf("Round-trip mismatch:\noriginal: %+v\nloaded:   %+v", original, loaded)
	}
}

func TestStore_Save_RejectsInvalid(t *testing.T) {
	store := NewStore(t.TempDir(), testLogger())

	bad := &story.Story{
		ID:         "bad",
		StartScene: "missing",
		Scenes: map[string]story.Scene{
			"a": {Text: "orphan scene"},
		},
	}
	if err := store.Save(bad); err == nil {
		t.Fatal("Expected validation error for unresolvable start_scene")
	}
}

func TestStore_Save_RejectsPathTraversal(t *testing.T) {
	store := NewStore(t.TempDir(), testLogger())

	bad := &story.Story{ID: "../evil", StartScene: "a", Scenes: map[string]story.Scene{"a": {Text: "x"}}}
	if err := store.Save(bad); err == nil {
		t.Fatal("Expected error for path-like story id")
	}
}

func TestStore_Delete(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "cave.yaml", caveYAML)

	store := NewStore(dir, testLogger())
	if err := store.Load(); err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	if err := store.Delete("cave"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "cave.yaml")); !os.IsNotExist(err) {
		t.Error("Story file should be gone from the stories directory")
	}
	if _, err := os.Stat(filepath.Join(dir, deletedDir, "cave.yaml")); err != nil {
		t.Errorf("Story file should be in %s: %v", deletedDir, err)
	}

	// The index keeps serving the story until reload.
	if store.Get("cave") == nil {
		t.Error("Index should still serve the story before reload")
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if store.Get("cave") != nil {
		t.Error("Deleted story should be gone after reload")
	}
}

func TestStore_Export(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "cave.yaml", caveYAML)

	store := NewStore(dir, testLogger())
	data, err := store.Export("cave")
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	exported, err := story.Parse(data)
	if err != nil {
		t.Fatalf("Exported YAML does not parse: %v", err)
	}
	if exported.ID != "cave" || len(exported.Scenes) != 2 {
		t.Errorf("Exported story mismatch: %+v", exported)
	}
}
