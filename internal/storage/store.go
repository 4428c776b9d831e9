package storage

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Keys for the persisted collections. They must stay stable within a deployment.
const (
	KeyManuals         = "quickhelp.manuals"
	KeyBookmarks       = "quickhelp.bookmarks"
	KeyInteractions    = "quickhelp.interactions"
	KeyNotifications   = "quickhelp.notifications"
	KeyCreatorRequests = "quickhelp.creator_requests"
	KeySearchLogs      = "quickhelp.search_logs"
	KeyUsers           = "quickhelp.users"
	KeySession         = "quickhelp.session"
)

// Store is the port every repository persists through. Values are JSON documents.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// LoadJSON decodes the collection stored under key into T.
// Missing keys, read failures and malformed payloads all yield the zero value;
// the latter two are logged and never surfaced to the caller.
func LoadJSON[T any](ctx context.Context, store Store, key string, logger *zap.Logger) T {
	var value T
	if store == nil {
		return value
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		loggerOrNop(logger).Warn("persisted state unreadable", zap.String("key", key), zap.Error(err))
		return value
	}
	if !ok || raw == "" {
		return value
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		loggerOrNop(logger).Warn("persisted state malformed, treating as empty", zap.String("key", key), zap.Error(err))
		var empty T
		return empty
	}
	return value
}

// SaveJSON encodes value and writes it under key.
func SaveJSON[T any](ctx context.Context, store Store, key string, value T) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, string(encoded))
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	return value, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
