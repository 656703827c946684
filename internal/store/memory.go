package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stepwise/internal/models"
)

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	courses map[string]models.Course
	order   map[string]int
	seq     int
	users   map[string]models.User
	emails  map[string]string
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		courses: make(map[string]models.Course),
		order:   make(map[string]int),
		users:   make(map[string]models.User),
		emails:  make(map[string]string),
		now:     time.Now,
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Create(_ context.Context, c models.Course) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c = c.Clone()
	c.ID = uuid.NewString()
	c.Version = 1
	m.seq++
	m.courses[c.ID] = c
	m.order[c.ID] = m.seq
	return c.ID, nil
}

func (m *Memory) ListForUser(_ context.Context, userID string) ([]models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Course{}
	for _, c := range m.courses {
		if c.UserID == userID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.order[out[i].ID] > m.order[out[j].ID]
	})
	return out, nil
}

func (m *Memory) Get(_ context.Context, userID, id string) (models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.courses[id]
	if !ok || c.UserID != userID {
		return models.Course{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *Memory) UpdatePartial(_ context.Context, userID, id string, u models.CourseUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	if u.ExpectedVersion != nil && *u.ExpectedVersion != c.Version {
		return ErrConflict
	}
	if u.Steps != nil {
		c.Steps = models.CloneSteps(u.Steps)
	}
	c.Version++
	m.courses[id] = c
	return nil
}

func (m *Memory) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(m.courses, id)
	delete(m.order, id)
	return nil
}

func (m *Memory) CreateUser(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, taken := m.emails[email]; taken {
		return models.User{}, ErrEmailTaken
	}
	u.ID = uuid.NewString()
	u.Email = email
	u.CreatedAt = m.now().UTC()
	m.users[u.ID] = u
	m.emails[email] = u.ID
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) GetUser(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}
