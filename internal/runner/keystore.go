package runner

import "sync"

// KeyStore persists the API credential.
type KeyStore interface {
	Load() (key string, ok bool)
	Save(key string) error
	Clear() error
}

// MemoryKeyStore keeps the key for the life of the process.
type MemoryKeyStore struct {
	mu  sync.Mutex
	key string
}

func NewMemoryKeyStore(key string) *MemoryKeyStore {
	return &MemoryKeyStore{key: key}
}

func (s *MemoryKeyStore) Load() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.key != ""
}

func (s *MemoryKeyStore) Save(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	return nil
}

func (s *MemoryKeyStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
	return nil
}
