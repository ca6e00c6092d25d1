package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Used by tests and by
// short-lived invocations that should not persist anything.
type MemoryStore struct {
	mu    sync.RWMutex
	token *TokenRecord
	cred  *Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadToken(_ context.Context) (*TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, ErrNotFound
	}
	return copyToken(s.token), nil
}

func (s *MemoryStore) SaveToken(_ context.Context, rec *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = copyToken(rec)
	return nil
}

func (s *MemoryStore) DeleteToken(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

func (s *MemoryStore) LoadCredential(_ context.Context) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil, ErrNotFound
	}
	return copyCredential(s.cred), nil
}

func (s *MemoryStore) SaveCredential(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = copyCredential(cred)
	return nil
}

func (s *MemoryStore) DeleteCredential(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Close() error { return nil }
