package handlers

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kosss26/storybot/internal/storage"
	"github.com/kosss26/storybot/internal/stories"
	"github.com/kosss26/storybot/pkg/engine"
)

const caveYAML = `id: cave
title: The Cave
start_scene: entrance
allow_restart: true
scenes:
  entrance:
    text: You stand at the mouth of a dark cave.
    choices:
      - id: take_lantern
        text: Take the lantern and enter
        next_scene: tunnel
        effects:
          - add_flag: lantern
      - id: flee
        text: Go home
        next_scene: coward_end
  tunnel:
    text: The tunnel narrows.
    choices:
      - id: press_on
        text: Press on toward the glow
        next_scene: hero_end
        conditions:
          - has_flag: lantern
      - id: turn_back
        text: Turn back
        next_scene: entrance
endings:
  hero_end:
    text: You found the treasure.
    ending_type: success
  coward_end:
    text: You went home.
    ending_type: failure
`

func testHandlerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

// newTestStoryStore writes the cave fixture into a temp directory and
// loads a store over it.
func newTestStoryStore(t *testing.T) *stories.Store {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cave.yaml"), []byte(caveYAML), 0o644); err != nil {
		t.Fatalf("Failed to write story fixture: %v", err)
	}
	return newStoreForDir(t, dir)
}

func newStoreForDir(t *testing.T, dir string) *stories.Store {
	t.Helper()
	store := stories.NewStore(dir, testHandlerLogger())
	if err := store.Load(); err != nil {
		t.Fatalf("Failed to load stories: %v", err)
	}
	return store
}

func newTestEngine(t *testing.T) (*engine.Interpreter, *stories.Store, *storage.MockStore) {
	t.Helper()
	storyStore := newTestStoryStore(t)
	runStore := storage.NewMockStore()
	return engine.New(storyStore, runStore, testHandlerLogger()), storyStore, runStore
}
