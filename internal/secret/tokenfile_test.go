package secret_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftocsv/internal/secret"
)

var _ secret.SecretStore = (*secret.TokenFile)(nil)
var _ secret.SecretStore = secret.MemoryStore{}

func newStore(t *testing.T) *secret.TokenFile {
	t.Helper()
	s := secret.NewTokenFile(filepath.Join(t.TempDir(), "tokens.json"))
	s.SetClock(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) })
	return s
}

func TestTokenFile_GetMissingFile(t *testing.T) {
	s := newStore(t)

	tok, err := s.Get(secret.DefaultTag)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestTokenFile_SetGetKeepsOtherTags(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set("prod", []byte("tok-prod")))
	require.NoError(t, s.Set("sandbox", []byte("tok-sbx")))

	tok, err := s.Get("prod")
	require.NoError(t, err)
	assert.Equal(t, "tok-prod", string(tok))

	entries, err := s.Entries()
	require.NoError(t, err)
	assert.Equal(t, map[string]secret.TokenEntry{
		"prod":    {AccessToken: "tok-prod", Timestamp: "2024-03-01T12:00:00Z"},
		"sandbox": {AccessToken: "tok-sbx", Timestamp: "2024-03-01T12:00:00Z"},
	}, entries)
}

func TestTokenFile_FileFormat(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set("default", []byte("abc")))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"default":{"access_token":"abc","timestamp":"2024-03-01T12:00:00Z"}}`, string(data))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestTokenFile_ReadsExistingStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"default":{"access_token":"legacy","timestamp":"2023-01-01 00:00:00+00:00"}}`), 0600))

	tok, err := secret.NewTokenFile(path).Get("default")
	require.NoError(t, err)
	assert.Equal(t, "legacy", string(tok))
}

func TestTokenFile_Delete(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Delete("nothing-yet"))

	require.NoError(t, s.Set("a", []byte("1")))
	require.NoError(t, s.Set("b", []byte("2")))
	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Delete("a"))

	entries, err := s.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Contains(t, entries, "b")
}

func TestTokenFile_FlushRemovesFile(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set("a", []byte("1")))

	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush())

	_, err := s.Entries()
	assert.True(t, errors.Is(err, secret.ErrStoreNotFound))

	tok, err := s.Get("a")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestTokenFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0600))

	_, err := secret.NewTokenFile(path).Get("default")
	assert.Error(t, err)
}

func TestNewTokenFile_DefaultPath(t *testing.T) {
	assert.Equal(t, secret.DefaultTokenPath, secret.NewTokenFile("").Path())
}

func TestMemoryStore(t *testing.T) {
	m := secret.MemoryStore{}
	require.NoError(t, m.Set("k", []byte("v")))
	v, _ := m.Get("k")
	assert.Equal(t, "v", string(v))
	require.NoError(t, m.Delete("k"))
	v, _ = m.Get("k")
	assert.Nil(t, v)
}
