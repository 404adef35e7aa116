package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Tokens is the credential state the client persists between calls.
type Tokens struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	Identifier   string `yaml:"identifier,omitempty"`
}

// Store holds the current token pair. Implementations must be safe for
// concurrent use.
type Store interface {
	Load() (Tokens, error)
	Save(tokens Tokens) error
	Clear() error
}

type MemoryStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

func NewMemoryStore(tokens Tokens) *MemoryStore {
	return &MemoryStore{tokens: tokens}
}

func (s *MemoryStore) Load() (Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, nil
}

func (s *MemoryStore) Save(tokens Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	return nil
}

func (s *MemoryStore) Clear() error {
	return s.Save(Tokens{})
}

// FileStore keeps tokens in a YAML file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultTokenPath is ~/.config/zerodrop/tokens.yaml or the OS equivalent.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "zerodrop", "tokens.yaml"), nil
}

// Load returns empty Tokens when the file does not exist yet.
func (s *FileStore) Load() (Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens Tokens
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return tokens, nil
	}
	if err != nil {
		return tokens, fmt.Errorf("reading token file: %w", err)
	}
	if err := yaml.Unmarshal(data, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("parsing token file: %w", err)
	}
	return tokens, nil
}

func (s *FileStore) Save(tokens Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(tokens)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	// Write then rename so a crash never leaves a half-written file.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*.yaml")
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
