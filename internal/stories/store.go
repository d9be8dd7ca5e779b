// Package stories implements the story store: a filesystem-backed,
// reloadable index of story definitions. YAML files in the configured
// directory are the source of truth; the in-memory index only changes
// on Load/Reload, so admin edits require an explicit reload to take
// effect.
package stories

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kosss26/storybot/pkg/story"
)

// deletedDir is where Delete moves story files instead of removing them.
const deletedDir = "_deleted"

// Store loads and indexes story definitions by id.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	index map[string]*story.Story
}

// NewStore creates a story store over the given directory. Call Load
// before serving.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
		index:  make(map[string]*story.Story),
	}
}

// Load reads all story definitions from the directory. Files that are
// empty, unparsable, or missing an id are skipped with a warning. A
// missing directory is not fatal: the store just stays empty.
func (s *Store) Load() error {
	index, err := s.loadAll()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	s.logger.Info("Stories loaded", "count", len(index), "dir", s.dir)
	return nil
}

// Reload rebuilds the index from disk and swaps it in atomically.
// Story values fetched before the reload remain valid.
func (s *Store) Reload() error {
	return s.Load()
}

func (s *Store) loadAll() (map[string]*story.Story, error) {
	index := make(map[string]*story.Story)

	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		s.logger.Warn("Stories directory does not exist", "dir", s.dir)
		return index, nil
	}

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Deleted stories stay on disk but out of the index.
			if path != s.dir {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		st, err := s.loadFile(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable story file", "path", path, "error", err)
			return nil
		}
		if st.ID == "" {
			s.logger.Warn("Skipping story file without id", "path", path)
			return nil
		}
		if _, dup := index[st.ID]; dup {
			s.logger.Warn("Skipping duplicate story id", "id", st.ID, "path", path)
			return nil
		}

		index[st.ID] = st
		s.logger.Info("Story loaded", "id", st.ID, "file", filepath.Base(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk stories directory: %w", err)
	}

	return index, nil
}

func (s *Store) loadFile(path string) (*story.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("story file is empty")
	}
	return story.Parse(data)
}

// Get returns the story with the given id, or nil.
func (s *Store) Get(id string) *story.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[id]
}

// List returns a snapshot of the index; later reloads do not affect it.
func (s *Store) List() map[string]*story.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*story.Story, len(s.index))
	for id, st := range s.index {
		out[id] = st
	}
	return out
}

// Count returns the number of loaded stories.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

func (s *Store) path(id string) (string, error) {
	sanitized, ok := story.SanitizeID(id)
	if !ok {
		return "", fmt.Errorf("invalid story id %q", id)
	}
	return filepath.Join(s.dir, sanitized+".yaml"), nil
}

// Exists reports whether a story file exists on disk for the id.
func (s *Store) Exists(id string) bool {
	path, err := s.path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// LoadFromDisk reads the current on-disk definition of a story,
// bypassing the index. Admin edits work against this copy so they never
// clobber changes made since the last reload.
func (s *Store) LoadFromDisk(id string) (*story.Story, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	st, err := s.loadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("story not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read story %s: %w", id, err)
	}
	return st, nil
}

// Save validates the story and writes it to disk as canonical YAML.
// Validation warnings are logged; errors abort the save. The index is
// untouched until the next reload.
func (s *Store) Save(st *story.Story) error {
	path, err := s.path(st.ID)
	if err != nil {
		return err
	}

	res := story.Validate(st)
	for _, w := range res.Warnings {
		s.logger.Warn("Story validation warning", "id", st.ID, "warning", w)
	}
	if !res.Valid() {
		return fmt.Errorf("story %s failed validation: %s", st.ID, res.Errors[0])
	}

	data, err := story.Marshal(st)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create stories directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write story file: %w", err)
	}

	s.logger.Info("Story saved", "id", st.ID, "summary", story.Summary(st))
	return nil
}

// Delete moves the story file into the _deleted subdirectory. The index
// keeps serving the story until the next reload.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("story not found: %s", id)
	}

	trash := filepath.Join(s.dir, deletedDir)
	if err := os.MkdirAll(trash, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", deletedDir, err)
	}
	if err := os.Rename(path, filepath.Join(trash, filepath.Base(path))); err != nil {
		return fmt.Errorf("failed to move story file: %w", err)
	}

	s.logger.Info("Story moved to deleted", "id", id)
	return nil
}

// Export returns the canonical YAML rendering of the current on-disk
// definition.
func (s *Store) Export(id string) ([]byte, error) {
	st, err := s.LoadFromDisk(id)
	if err != nil {
		return nil, err
	}
	return story.Marshal(st)
}
