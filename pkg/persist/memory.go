package persist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/stepwise/pkg/project"
)

// Memory is an in-process Client. The desktop app uses it when no
// persistence service is configured.
type Memory struct {
	mu       sync.Mutex
	projects map[string]project.Project
	shares   map[string]string // token -> project id
	now      func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]project.Project),
		shares:   make(map[string]string),
		now:      time.Now,
	}
}

var _ Client = (*Memory)(nil)

func (m *Memory) List(_ context.Context) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]project.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return project.Project{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) GetShared(ctx context.Context, token string) (project.Project, error) {
	m.mu.Lock()
	id, ok := m.shares[token]
	m.mu.Unlock()
	if !ok {
		return project.Project{}, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *Memory) Create(_ context.Context, p project.Project) (project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = p.Clone()
	p.ID = uuid.NewString()
	p.UpdatedAt = m.now()
	m.projects[p.ID] = p
	return p.Clone(), nil
}

func (m *Memory) Update(_ context.Context, p project.Project) (project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return project.Project{}, ErrNotFound
	}
	p = p.Clone()
	p.UpdatedAt = m.now()
	m.projects[p.ID] = p
	return p.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	for tok, pid := range m.shares {
		if pid == id {
			delete(m.shares, tok)
		}
	}
	return nil
}

func (m *Memory) Share(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return "", ErrNotFound
	}
	tok := uuid.NewString()
	m.shares[tok] = id
	return tok, nil
}
