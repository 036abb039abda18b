package gateway

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// TokenStore keeps the bearer token between calls.
type TokenStore interface {
	Token() (string, error)
	SetToken(token string) error
	Clear() error
}

type MemoryTokenStore struct {
	token string
	mutex sync.RWMutex
}

var _ TokenStore = (*MemoryTokenStore)(nil)

func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (s *MemoryTokenStore) Token() (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.token, nil
}

func (s *MemoryTokenStore) SetToken(token string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	return s.SetToken("")
}

// FileTokenStore keeps the token in a file readable by the current user only.
// A missing file means no token.
type FileTokenStore struct {
	Path  string
	mutex sync.Mutex
}

var _ TokenStore = (*FileTokenStore)(nil)

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

func (s *FileTokenStore) Token() (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "reading token file")
	}
	return strings.TrimSpace(string(b)), nil
}

// SetToken writes via a temp file then rename.
func (s *FileTokenStore) SetToken(token string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return errors.Wrap(err, "creating token dir")
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return errors.Wrap(err, "writing token file")
	}
	return errors.Wrap(os.Rename(tmp, s.Path), "writing token file")
}

func (s *FileTokenStore) Clear() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "removing token file")
	}
	return nil
}
