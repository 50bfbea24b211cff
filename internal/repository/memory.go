package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/model"
)

// MemoryStore keeps users in process memory. It backs STORE_DRIVER=memory and tests.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]model.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, users: make(map[int64]model.User)}
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if strings.ToLower(user.Email) == email {
			return cloneUser(user), nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s *MemoryStore) FindUserByID(_ context.Context, id int64, role *auth.Role) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok || (role != nil && user.Role != *role) {
		return model.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *MemoryStore) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	user.LastLoginAt = &at
	s.users[id] = user
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return model.User{}, ErrEmailTaken
		}
	}
	user.ID = s.nextID
	s.nextID++
	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *MemoryStore) ListUsers(_ context.Context, role *auth.Role, limit int) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]model.User, 0, len(s.users))
	for _, user := range s.users {
		if role != nil && user.Role != *role {
			continue
		}
		users = append(users, cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *MemoryStore) CountUsersByRole(_ context.Context) (map[auth.Role]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[auth.Role]int, len(auth.Roles()))
	for _, role := range auth.Roles() {
		counts[role] = 0
	}
	for _, user := range s.users {
		counts[user.Role]++
	}
	return counts, nil
}

func cloneUser(user model.User) model.User {
	if user.Grade != nil {
		grade := *user.Grade
		user.Grade = &grade
	}
	if user.LastLoginAt != nil {
		at := *user.LastLoginAt
		user.LastLoginAt = &at
	}
	return user
}
