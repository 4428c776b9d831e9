package bookmarks

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

type recordedStat struct {
	userID string
	kind   users.StatKind
	delta  int
}

type statsRecorderStub struct {
	calls []recordedStat
}

func (s *statsRecorderStub) RecordStat(_ context.Context, id string, kind users.StatKind, delta int) error {
	s.calls = append(s.calls, recordedStat{userID: id, kind: kind, delta: delta})
	return nil
}

func newTestService(t *testing.T, bus *events.Bus, stats StatsRecorder) *Service {
	t.Helper()
	current := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	service, err := NewService(ServiceConfig{
		Store:     storage.NewMemoryStore(),
		Publisher: bus,
		Stats:     stats,
		Clock: func() time.Time {
			current = current.Add(time.Minute)
			return current
		},
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestAddEnforcesUniquePair(t *testing.T) {
	ctx := context.Background()
	stats := &statsRecorderStub{}
	service := newTestService(t, events.NewBus(nil), stats)

	added, err := service.Add(ctx, "userA", "7", "Expense reporting")
	if err != nil || !added {
		t.Fatalf("expected first add, added=%v err=%v", added, err)
	}
	added, err = service.Add(ctx, "userA", "7", "Expense reporting")
	if err != nil || added {
		t.Fatalf("expected duplicate add to be ignored, added=%v err=%v", added, err)
	}
	if len(service.ListForUser(ctx, "userA")) != 1 {
		t.Fatalf("expected exactly one bookmark")
	}
	if len(stats.calls) != 1 || stats.calls[0].delta != 1 || stats.calls[0].kind != users.StatBookmarks {
		t.Fatalf("unexpected stat calls %#v", stats.calls)
	}
}

func TestAddRequiresIdentity(t *testing.T) {
	service := newTestService(t, events.NewBus(nil), nil)
	if _, err := service.Add(context.Background(), "", "7", "x"); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}

func TestToggleFlipsState(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, events.NewBus(nil), nil)

	state, err := service.Toggle(ctx, "userA", "3", "Git branching conventions")
	if err != nil || !state {
		t.Fatalf("expected bookmarked, state=%v err=%v", state, err)
	}
	state, err = service.Toggle(ctx, "userA", "3", "Git branching conventions")
	if err != nil || state {
		t.Fatalf("expected unbookmarked, state=%v err=%v", state, err)
	}
	if service.IsBookmarked(ctx, "userA", "3") {
		t.Fatalf("expected no bookmark after second toggle")
	}
}

func TestHoldersOfReturnsDistinctUsers(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, events.NewBus(nil), nil)
	for _, pair := range [][2]string{{"userA", "7"}, {"userB", "7"}, {"userA", "2"}} {
		if _, err := service.Add(ctx, pair[0], pair[1], "t"); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
	}

	holders := service.HoldersOf(ctx, "7")
	if len(holders) != 2 || holders[0] != "userA" || holders[1] != "userB" {
		t.Fatalf("unexpected holders %v", holders)
	}
	if len(service.HoldersOf(ctx, "missing")) != 0 {
		t.Fatalf("expected no holders for unknown manual")
	}
}

func TestListForUserMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, events.NewBus(nil), nil)
	for _, manualID := range []string{"1", "2", "3"} {
		if _, err := service.Add(ctx, "userA", manualID, "t"+manualID); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
	}

	listed := service.ListForUser(ctx, "userA")
	if len(listed) != 3 || listed[0].ManualID != "3" || listed[2].ManualID != "1" {
		t.Fatalf("unexpected order %#v", listed)
	}
	if listed[0].ManualTitle != "t3" {
		t.Fatalf("expected denormalized title snapshot")
	}
}

func TestMutationsPublishBookmarkEvents(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(nil)
	count := 0
	bus.Subscribe(events.KindBookmarks, func(events.Event) { count++ })
	service := newTestService(t, bus, nil)

	if _, err := service.Add(ctx, "userA", "1", "t"); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if _, err := service.Remove(ctx, "userA", "1"); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if _, err := service.Remove(ctx, "userA", "1"); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 events, got %d", count)
	}
}
