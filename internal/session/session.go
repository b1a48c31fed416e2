// Package session holds the signed-in user's credentials and identity and
// persists them between CLI runs.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Session is the ambient auth state attached to API calls.
type Session struct {
	Token   string `yaml:"token,omitempty"`
	UserID  string `yaml:"user_id,omitempty"`
	Account string `yaml:"user_account,omitempty"`
	Name    string `yaml:"user_name,omitempty"`
	Role    string `yaml:"user_role,omitempty"`
}

// LoggedIn reports whether a bearer token is present.
func (s Session) LoggedIn() bool {
	return strings.TrimSpace(s.Token) != ""
}

// Store guards a Session and mirrors it to a YAML file. A Store with an
// empty path keeps the session in memory only.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Session
}

// NewStore returns an in-memory store seeded with s.
func NewStore(s Session) *Store {
	return &Store{current: s}
}

// Open loads the session file at path. A missing file yields an empty
// session rather than an error.
func Open(path string) (*Store, error) {
	st := &Store{path: path}
	if path == "" {
		return st, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return nil, fmt.Errorf("read session file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &st.current); err != nil {
		return nil, fmt.Errorf("decode session file %q: %w", path, err)
	}
	return st, nil
}

// Current returns a copy of the session.
func (st *Store) Current() Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Token returns the bearer token, or "" for anonymous calls.
func (st *Store) Token() string {
	if st == nil {
		return ""
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return strings.TrimSpace(st.current.Token)
}

// UserID returns the signed-in user's id.
func (st *Store) UserID() string {
	if st == nil {
		return ""
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return strings.TrimSpace(st.current.UserID)
}

// Save replaces the session and writes it to disk.
func (st *Store) Save(s Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = s
	return st.persist()
}

// Clear drops every auth key, the counterpart of signing out.
func (st *Store) Clear() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = Session{}
	if st.path == "" {
		return nil
	}
	if err := os.Remove(st.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (st *Store) persist() error {
	if st.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := yaml.Marshal(st.current)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(st.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file %q: %w", st.path, err)
	}
	return nil
}
