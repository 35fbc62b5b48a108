package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/uaagate/internal/tenant"
)

// MemoryStore es el driver en memoria (dev/tests).
type MemoryStore struct {
	mu      sync.RWMutex
	byKey   map[string]*LocalUser // tenant/key
	byLogin map[string]string     // tenant/login -> key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:   make(map[string]*LocalUser),
		byLogin: make(map[string]string),
	}
}

func scoped(t, v string) string { return t + "/" + v }

func (s *MemoryStore) FindByLogin(ctx context.Context, login string) (*LocalUser, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byLogin[scoped(t, NormalizeLogin(login))]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(s.byKey[scoped(t, key)]), nil
}

func (s *MemoryStore) Create(ctx context.Context, u *LocalUser) (*LocalUser, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range u.Logins {
		if _, ok := s.byLogin[scoped(t, NormalizeLogin(l.Value))]; ok {
			return nil, fmt.Errorf("%w: %s", ErrLoginExists, l.Value)
		}
	}
	cp := cloneUser(u)
	if cp.Key == "" {
		cp.Key = uuid.NewString()
	}
	now := time.Now().UTC()
	cp.Tenant = t
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.byKey[scoped(t, cp.Key)] = cp
	for _, l := range cp.Logins {
		s.byLogin[scoped(t, NormalizeLogin(l.Value))] = cp.Key
	}
	return cloneUser(cp), nil
}

func (s *MemoryStore) Save(ctx context.Context, u *LocalUser) error {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byKey[scoped(t, u.Key)]
	if !ok {
		return ErrNotFound
	}
	for _, l := range u.Logins {
		if owner, ok := s.byLogin[scoped(t, NormalizeLogin(l.Value))]; ok && owner != u.Key {
			return fmt.Errorf("%w: %s", ErrLoginExists, l.Value)
		}
	}
	for _, l := range cur.Logins {
		delete(s.byLogin, scoped(t, NormalizeLogin(l.Value)))
	}
	cp := cloneUser(u)
	cp.Tenant = t
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.byKey[scoped(t, cp.Key)] = cp
	for _, l := range cp.Logins {
		s.byLogin[scoped(t, NormalizeLogin(l.Value))] = cp.Key
	}
	return nil
}
