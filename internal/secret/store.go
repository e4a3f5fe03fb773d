package secret

// SecretStore provides a pluggable interface for storing sensitive data
// such as access tokens. The file-backed TokenFile is the default; tests
// use an in-memory map.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// MemoryStore is a SecretStore held in a map. Not safe for concurrent use.
type MemoryStore map[string][]byte

func (m MemoryStore) Set(key string, value []byte) error {
	m[key] = append([]byte(nil), value...)
	return nil
}

func (m MemoryStore) Get(key string) ([]byte, error) {
	return m[key], nil
}

func (m MemoryStore) Delete(key string) error {
	delete(m, key)
	return nil
}
