package secret

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// DefaultTokenPath is where tokens are cached when no path is configured.
const DefaultTokenPath = "/tmp/sf_token_store.json"

// DefaultTag is the key a token is stored under when none is given.
const DefaultTag = "default"

// ErrStoreNotFound is returned by Entries when the store file does not exist.
var ErrStoreNotFound = errors.New("token store not found")

// TokenEntry is one cached access token.
type TokenEntry struct {
	AccessToken string `json:"access_token"`
	Timestamp   string `json:"timestamp"`
}

// TokenFile implements SecretStore as a JSON file of the form
// {"<tag>": {"access_token": "...", "timestamp": "..."}}.
type TokenFile struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewTokenFile returns a store backed by path (DefaultTokenPath if empty).
// The file is created lazily on the first Set.
func NewTokenFile(path string) *TokenFile {
	if path == "" {
		path = DefaultTokenPath
	}
	return &TokenFile{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *TokenFile) Path() string { return s.path }

// Set stores token under tag with the current UTC time. Other tags are kept.
func (s *TokenFile) Set(tag string, token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil && !errors.Is(err, ErrStoreNotFound) {
		return err
	}
	if entries == nil {
		entries = map[string]TokenEntry{}
	}
	entries[tag] = TokenEntry{
		AccessToken: string(token),
		Timestamp:   s.now().UTC().Format(time.RFC3339Nano),
	}
	return s.save(entries)
}

// Get returns the token stored under tag, or nil if there is none.
func (s *TokenFile) Get(tag string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if errors.Is(err, ErrStoreNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e, ok := entries[tag]
	if !ok || e.AccessToken == "" {
		return nil, nil
	}
	return []byte(e.AccessToken), nil
}

// Delete removes tag from the store. A missing file or tag is not an error.
func (s *TokenFile) Delete(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if errors.Is(err, ErrStoreNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, ok := entries[tag]; !ok {
		return nil
	}
	delete(entries, tag)
	return s.save(entries)
}

// Entries returns every cached token keyed by tag.
func (s *TokenFile) Entries() (map[string]TokenEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Flush removes the store file entirely.
func (s *TokenFile) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("flush token store: %w", err)
	}
	return nil
}

func (s *TokenFile) load() (map[string]TokenEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}
	entries := map[string]TokenEntry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse token store %s: %w", s.path, err)
	}
	return entries, nil
}

// save writes entries to a temp file and renames it over the store.
func (s *TokenFile) save(entries map[string]TokenEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode token store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create token store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-store-*")
	if err != nil {
		return fmt.Errorf("write token store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write token store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write token store: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write token store: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
