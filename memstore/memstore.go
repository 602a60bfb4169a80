// Package memstore provides in-memory implementations of the user, task and
// reset token stores. It backs STORE_DRIVER=memory and the HTTP tests. Each
// store guards its maps with a mutex, so every call is atomic.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/taskdesk-go/resettoken"
	"github.com/user/taskdesk-go/tasks"
	"github.com/user/taskdesk-go/users"
)

// Store bundles the three stores.
type Store struct {
	Users  *UserStore
	Tasks  *TaskStore
	Tokens *TokenStore
}

// New creates empty stores.
func New() *Store {
	return &Store{
		Users:  NewUserStore(),
		Tasks:  NewTaskStore(),
		Tokens: NewTokenStore(),
	}
}

func now() time.Time { return time.Now().UTC() }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// UserStore implements users.Repository.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*users.User
	byEmail map[string]uuid.UUID
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[uuid.UUID]*users.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func copyUser(u *users.User) *users.User {
	c := *u
	c.Name = cloneString(u.Name)
	return &c
}

func (s *UserStore) Create(_ context.Context, u *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[u.Email]; taken {
		return users.ErrEmailTaken
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	ts := now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = ts
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = ts
	}
	s.byID[u.ID] = copyUser(u)
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*users.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return users.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = now()
	return nil
}

func (s *UserStore) UpdateName(_ context.Context, id uuid.UUID, name *string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	u.Name = cloneString(name)
	u.UpdatedAt = now()
	return copyUser(u), nil
}

// Count returns the number of users registered under email.
func (s *UserStore) Count(email string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.byID {
		if u.Email == email {
			n++
		}
	}
	return n
}

// TaskStore implements tasks.Repository.
type TaskStore struct {
	mu    sync.RWMutex
	seq   uint64
	tasks map[uuid.UUID]*taskEntry
}

type taskEntry struct {
	task tasks.Task
	seq  uint64 // insertion order, breaks created_at ties
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*taskEntry)}
}

func copyTask(t tasks.Task) *tasks.Task {
	t.Description = cloneString(t.Description)
	return &t
}

func (s *TaskStore) Create(_ context.Context, t *tasks.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	ts := now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = ts
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = ts
	}
	s.seq++
	s.tasks[t.ID] = &taskEntry{task: *copyTask(*t), seq: s.seq}
	return nil
}

func (s *TaskStore) lookup(userID, taskID uuid.UUID) (*taskEntry, bool) {
	e, ok := s.tasks[taskID]
	if !ok || e.task.UserID != userID {
		return nil, false
	}
	return e, true
}

func (s *TaskStore) Get(_ context.Context, userID, taskID uuid.UUID) (*tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(userID, taskID)
	if !ok {
		return nil, tasks.ErrTaskNotFound
	}
	return copyTask(e.task), nil
}

func (s *TaskStore) ListByUser(_ context.Context, userID uuid.UUID) ([]tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*taskEntry
	for _, e := range s.tasks {
		if e.task.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
			return a.task.CreatedAt.After(b.task.CreatedAt)
		}
		return a.seq > b.seq
	})

	list := make([]tasks.Task, 0, len(entries))
	for _, e := range entries {
		list = append(list, *copyTask(e.task))
	}
	return list, nil
}

func (s *TaskStore) Update(_ context.Context, userID, taskID uuid.UUID, patch tasks.Patch) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(userID, taskID)
	if !ok {
		return nil, tasks.ErrTaskNotFound
	}
	if patch.Empty() {
		return copyTask(e.task), nil
	}
	if patch.Title != nil {
		e.task.Title = *patch.Title
	}
	if patch.SetDescription {
		e.task.Description = cloneString(patch.Description)
	}
	if patch.IsCompleted != nil {
		e.task.IsCompleted = *patch.IsCompleted
	}
	e.task.UpdatedAt = now()
	return copyTask(e.task), nil
}

func (s *TaskStore) Delete(_ context.Context, userID, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(userID, taskID); !ok {
		return tasks.ErrTaskNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

// TokenStore implements resettoken.Store.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]resettoken.Token
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]resettoken.Token)}
}

func (s *TokenStore) Create(_ context.Context, t *resettoken.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	s.tokens[t.Token] = *t
	return nil
}

func (s *TokenStore) Get(_ context.Context, token string) (*resettoken.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, resettoken.ErrNotFound
	}
	return &t, nil
}

// Delete removes token under the lock; only the first caller sees true.
func (s *TokenStore) Delete(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token]; !ok {
		return false, nil
	}
	delete(s.tokens, token)
	return true, nil
}

func (s *TokenStore) DeleteForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

func (s *TokenStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.tokens {
		if t.Expires.Before(before) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

// ForUser returns the user's outstanding tokens.
func (s *TokenStore) ForUser(userID uuid.UUID) []resettoken.Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []resettoken.Token
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of stored tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

var (
	_ users.Repository = (*UserStore)(nil)
	_ tasks.Repository = (*TaskStore)(nil)
	_ resettoken.Store = (*TokenStore)(nil)
)
