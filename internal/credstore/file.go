package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// fileContents is the on-disk layout, keyed by API origin.
type fileContents map[string]*fileEntry

type fileEntry struct {
	Token      *TokenRecord `json:"token,omitempty"`
	Credential *Credential  `json:"credential,omitempty"`
}

// FileStore keeps records in a 0600 JSON file. Every write goes through a
// temp file and rename so readers see either the old or the new state.
type FileStore struct {
	dir    string
	origin string
	mu     sync.Mutex
}

// NewFileStore creates a file store under dir for the given API origin.
func NewFileStore(dir, origin string) *FileStore {
	return &FileStore{dir: dir, origin: origin}
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, "credentials.json")
}

// LockPath implements Locker.
func (s *FileStore) LockPath() string {
	return filepath.Join(s.dir, "refresh.lock")
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) LoadToken(_ context.Context) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.entry()
	if err != nil {
		return nil, err
	}
	if entry.Token == nil {
		return nil, ErrNotFound
	}
	return entry.Token, nil
}

func (s *FileStore) SaveToken(_ context.Context, rec *TokenRecord) error {
	return s.update(func(e *fileEntry) { e.Token = copyToken(rec) })
}

func (s *FileStore) DeleteToken(_ context.Context) error {
	return s.update(func(e *fileEntry) { e.Token = nil })
}

func (s *FileStore) LoadCredential(_ context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.entry()
	if err != nil {
		return nil, err
	}
	if entry.Credential == nil {
		return nil, ErrNotFound
	}
	return entry.Credential, nil
}

func (s *FileStore) SaveCredential(_ context.Context, cred *Credential) error {
	return s.update(func(e *fileEntry) { e.Credential = copyCredential(cred) })
}

func (s *FileStore) DeleteCredential(_ context.Context) error {
	return s.update(func(e *fileEntry) { e.Credential = nil })
}

func (s *FileStore) entry() (*fileEntry, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	if e, ok := all[s.origin]; ok && e != nil {
		return e, nil
	}
	return &fileEntry{}, nil
}

func (s *FileStore) update(fn func(*fileEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	e := all[s.origin]
	if e == nil {
		e = &fileEntry{}
	}
	fn(e)
	if e.Token == nil && e.Credential == nil {
		delete(all, s.origin)
	} else {
		all[s.origin] = e
	}
	return s.saveAll(all)
}

func (s *FileStore) loadAll() (fileContents, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(fileContents), nil
		}
		return nil, err
	}

	var all fileContents
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("invalid credentials file %s: %w", s.path(), err)
	}
	if all == nil {
		all = make(fileContents)
	}
	return all, nil
}

func (s *FileStore) saveAll(all fileContents) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.dir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	destPath := s.path()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
