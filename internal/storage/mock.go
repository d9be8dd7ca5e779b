package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kosss26/storybot/pkg/run"
)

// MockStore is an in-memory implementation of RunStore for testing.
type MockStore struct {
	mu       sync.RWMutex
	users    map[string]*run.User
	runs     map[uuid.UUID]*run.Run
	flags    map[uuid.UUID]map[string]string
	finished map[string]bool

	pingError    error
	setFlagError error
}

// Ensure MockStore implements RunStore interface
var _ RunStore = (*MockStore)(nil)

// NewMockStore creates a new mock run store.
func NewMockStore() *MockStore {
	return &MockStore{
		users:    make(map[string]*run.User),
		runs:     make(map[uuid.UUID]*run.Run),
		flags:    make(map[uuid.UUID]map[string]string),
		finished: make(map[string]bool),
	}
}

// SetPingError configures the mock to fail on ping with the given error.
func (m *MockStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetFlagError configures SetFlag to fail with the given error.
func (m *MockStore) SetFlagError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setFlagError = err
}

func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) EnsureUser(ctx context.Context, userID, username string) (*run.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	u := &run.User{ID: userID, Username: username, CreatedAt: time.Now().UTC()}
	m.users[userID] = u
	return u, nil
}

func (m *MockStore) CreateRun(ctx context.Context, userID, storyID, startPosition string) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rn := run.New(userID, storyID, startPosition)
	m.runs[rn.ID] = rn
	return rn, nil
}

func (m *MockStore) GetRun(ctx context.Context, id uuid.UUID) (*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rn, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *rn
	return &cp, nil
}

func (m *MockStore) GetActiveRun(ctx context.Context, userID, storyID string) (*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *run.Run
	for _, rn := range m.runs {
		if rn.Finished || rn.UserID != userID || rn.StoryID != storyID {
			continue
		}
		if latest == nil || rn.StartedAt.After(latest.StartedAt) {
			latest = rn
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MockStore) ListActiveRuns(ctx context.Context) ([]*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var runs []*run.Run
	for _, rn := range m.runs {
		if rn.Finished {
			continue
		}
		cp := *rn
		runs = append(runs, &cp)
	}
	return runs, nil
}

func (m *MockStore) UpdatePosition(ctx context.Context, id uuid.UUID, position string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rn, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	rn.Position = position
	return nil
}

func (m *MockStore) FinishRun(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rn, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	now := time.Now().UTC()
	rn.Finished = true
	rn.FinishedAt = &now
	m.finished[rn.UserID+"/"+rn.StoryID] = true
	return nil
}

func (m *MockStore) HasFinishedRun(ctx context.Context, userID, storyID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finished[userID+"/"+storyID], nil
}

func (m *MockStore) ResetRun(ctx context.Context, userID, storyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *run.Run
	for _, rn := range m.runs {
		if rn.Finished || rn.UserID != userID || rn.StoryID != storyID {
			continue
		}
		if target == nil || rn.StartedAt.After(target.StartedAt) {
			target = rn
		}
	}
	if target == nil {
		return ErrRunNotFound
	}
	delete(m.flags, target.ID)
	delete(m.runs, target.ID)
	return nil
}

func (m *MockStore) GetFlags(ctx context.Context, runID uuid.UUID) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flags := make(map[string]string, len(m.flags[runID]))
	for k, v := range m.flags[runID] {
		flags[k] = v
	}
	return flags, nil
}

func (m *MockStore) SetFlag(ctx context.Context, runID uuid.UUID, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setFlagError != nil {
		return m.setFlagError
	}
	if m.flags[runID] == nil {
		m.flags[runID] = make(map[string]string)
	}
	m.flags[runID][name] = value
	return nil
}

func (m *MockStore) RemoveFlag(ctx context.Context, runID uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags[runID], name)
	return nil
}
