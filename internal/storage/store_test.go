package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type record struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("read failed")
}

func (failingStore) Put(context.Context, string, string) error { return errors.New("write failed") }

func (failingStore) Delete(context.Context, string) error { return errors.New("delete failed") }

func newTestGormStore(t *testing.T, clock func() time.Time) *GormStore {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&Entry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	store, err := NewGormStore(database, clock)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestLoadJSONRoundTripsThroughMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := SaveJSON(ctx, store, KeyManuals, []record{{ID: "1", Count: 2}}); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	loaded := LoadJSON[[]record](ctx, store, KeyManuals, zap.NewNop())
	if len(loaded) != 1 || loaded[0].ID != "1" || loaded[0].Count != 2 {
		t.Fatalf("unexpected loaded value %#v", loaded)
	}
}

func TestLoadJSONTreatsMalformedStateAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Put(ctx, KeyBookmarks, "{not json"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	loaded := LoadJSON[[]record](ctx, store, KeyBookmarks, zap.NewNop())
	if loaded != nil {
		t.Fatalf("expected empty collection, got %#v", loaded)
	}
}

func TestLoadJSONTreatsReadFailureAsEmpty(t *testing.T) {
	loaded := LoadJSON[map[string]record](context.Background(), failingStore{}, KeyInteractions, nil)
	if len(loaded) != 0 {
		t.Fatalf("expected empty map, got %#v", loaded)
	}
}

func TestGormStorePutOverwritesAndDeletes(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1790000000, 0)
	store := newTestGormStore(t, func() time.Time { return now })

	if err := store.Put(ctx, KeySearchLogs, `[1]`); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if err := store.Put(ctx, KeySearchLogs, `[1,2]`); err != nil {
		t.Fatalf("unexpected overwrite error: %v", err)
	}

	value, ok, err := store.Get(ctx, KeySearchLogs)
	if err != nil || !ok {
		t.Fatalf("expected stored value, ok=%v err=%v", ok, err)
	}
	if value != `[1,2]` {
		t.Fatalf("expected overwritten value, got %s", value)
	}

	if err := store.Delete(ctx, KeySearchLogs); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, KeySearchLogs); ok {
		t.Fatalf("expected key to be removed")
	}
}

func TestGormStoreUpdatedSince(t *testing.T) {
	ctx := context.Background()
	current := time.Unix(1790000000, 0)
	store := newTestGormStore(t, func() time.Time { return current })

	if err := store.Put(ctx, KeyManuals, `[]`); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	current = current.Add(time.Hour)
	if err := store.Put(ctx, KeyNotifications, `[]`); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	keys, err := store.UpdatedSince(ctx, time.Unix(1790000000, 0).Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if len(keys) != 1 || keys[0] != KeyNotifications {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestNewGormStoreRequiresDatabase(t *testing.T) {
	if _, err := NewGormStore(nil, nil); err == nil {
		t.Fatalf("expected error for missing database")
	}
}
