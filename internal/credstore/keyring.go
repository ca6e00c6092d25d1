package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "rocketctl"

// KeyringStore keeps each record as a single JSON secret in the system keyring.
type KeyringStore struct {
	origin string
}

// NewKeyringStore creates a keyring store for the given API origin.
func NewKeyringStore(origin string) *KeyringStore {
	return &KeyringStore{origin: origin}
}

// KeyringAvailable probes the system keyring with a throwaway secret.
func KeyringAvailable() bool {
	testKey := "rocketctl::test"
	if err := keyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey)
	return true
}

func (s *KeyringStore) key(kind string) string {
	return fmt.Sprintf("rocketctl::%s::%s", kind, s.origin)
}

func (s *KeyringStore) Name() string { return "keyring" }

func (s *KeyringStore) Close() error { return nil }

func (s *KeyringStore) LoadToken(_ context.Context) (*TokenRecord, error) {
	var rec TokenRecord
	if err := s.get("token", &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *KeyringStore) SaveToken(_ context.Context, rec *TokenRecord) error {
	return s.set("token", rec)
}

func (s *KeyringStore) DeleteToken(_ context.Context) error {
	return s.delete("token")
}

func (s *KeyringStore) LoadCredential(_ context.Context) (*Credential, error) {
	var cred Credential
	if err := s.get("credential", &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *KeyringStore) SaveCredential(_ context.Context, cred *Credential) error {
	return s.set("credential", cred)
}

func (s *KeyringStore) DeleteCredential(_ context.Context) error {
	return s.delete("credential")
}

func (s *KeyringStore) get(kind string, v any) error {
	data, err := keyring.Get(serviceName, s.key(kind))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("keyring read %s: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("invalid %s in keyring: %w", kind, err)
	}
	return nil
}

func (s *KeyringStore) set(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := keyring.Set(serviceName, s.key(kind), string(data)); err != nil {
		return fmt.Errorf("keyring write %s: %w", kind, err)
	}
	return nil
}

func (s *KeyringStore) delete(kind string) error {
	err := keyring.Delete(serviceName, s.key(kind))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", kind, err)
	}
	return nil
}
