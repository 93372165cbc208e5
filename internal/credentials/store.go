package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by stores with no entry for a key.
var ErrNotFound = errors.New("credentials not found")

// DefaultKeyringService is the keychain service name entries are filed under.
const DefaultKeyringService = "hgrun"

// Store persists credential sets keyed by Key(url).
type Store interface {
	Get(key string) (Set, error)
	Set(key string, s Set) error
	Delete(key string) error
}

// KeyringStore keeps credentials in the OS keychain.
type KeyringStore struct {
	Service string
}

// NewKeyringStore returns a store under DefaultKeyringService.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{Service: DefaultKeyringService}
}

type keyringEntry struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

func (k *KeyringStore) Get(key string) (Set, error) {
	raw, err := keyring.Get(k.Service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Set{}, ErrNotFound
		}
		return Set{}, fmt.Errorf("failed to read keyring: %w", err)
	}
	var e keyringEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Set{}, fmt.Errorf("failed to parse keyring entry: %w", err)
	}
	return NewSet(e.Username, e.Secret), nil
}

func (k *KeyringStore) Set(key string, s Set) error {
	data, err := json.Marshal(keyringEntry{Username: s.Username, Secret: string(s.Secret)})
	if err != nil {
		return err
	}
	if err := keyring.Set(k.Service, key, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Delete(key string) error {
	if err := keyring.Delete(k.Service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Set
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Set)}
}

func (m *MemoryStore) Get(key string) (Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entries[key]
	if !ok {
		return Set{}, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Set(key string, s Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.entries[key]; ok {
		s.Scrub()
		delete(m.entries, key)
	}
	return nil
}
