package session

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/natefinch/atomic"
)

// CookieMaxAge is how long a saved token stays in the cookie file.
const CookieMaxAge = 7 * 24 * time.Hour

const (
	cookieFile = "token.cookie"
	mirrorFile = "token.local"
)

type cookie struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists the session bearer token. The token is written to a cookie
// file with an expiry and mirrored to a local file without one; reads prefer
// the cookie and fall back to the mirror.
type Store struct {
	dir string
	now func() time.Time

	mu    sync.RWMutex
	token string
}

// NewStore opens the store rooted at dir and loads any saved token.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	s := &Store{dir: dir, now: time.Now}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the current bearer token or "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Reload re-reads the token from disk.
func (s *Store) Reload() error {
	token, err := s.readCookie()
	if err != nil {
		return err
	}
	if token == "" {
		token, err = s.readMirror()
		if err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Save stores the token in both files.
func (s *Store) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("session: empty token")
	}
	data, err := sonic.Marshal(cookie{Token: token, ExpiresAt: s.now().Add(CookieMaxAge)})
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path(cookieFile), bytes.NewReader(data)); err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path(mirrorFile), strings.NewReader(token)); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear removes the token from both files.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	for _, name := range []string{cookieFile, mirrorFile} {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Valid reports whether a token is present and its expiry, if any, has not
// passed.
func (s *Store) Valid() bool {
	token := s.Token()
	if token == "" {
		return false
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return false
	}
	return claims.ExpiresAt.IsZero() || claims.ExpiresAt.After(s.now())
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) readCookie() (string, error) {
	data, err := os.ReadFile(s.path(cookieFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var c cookie
	if err := sonic.Unmarshal(data, &c); err != nil {
		// A corrupt cookie is treated like a missing one.
		return "", nil
	}
	if !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(s.now()) {
		return "", nil
	}
	return c.Token, nil
}

func (s *Store) readMirror() (string, error) {
	data, err := os.ReadFile(s.path(mirrorFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
