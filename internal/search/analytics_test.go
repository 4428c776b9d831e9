package search

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newTestAnalytics(t *testing.T, bus *events.Bus) (*Analytics, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	analytics, err := NewAnalytics(AnalyticsConfig{
		Store:     storage.NewMemoryStore(),
		Publisher: bus,
		Clock:     clock.Now,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create analytics: %v", err)
	}
	return analytics, clock
}

func mustLogSearch(t *testing.T, analytics *Analytics, query string, results int) {
	t.Helper()
	if _, err := analytics.LogSearch(context.Background(), query, results, users.User{ID: "u-reader", Role: users.RoleUser}); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}
}

func TestLogSearchSkipsBlankQueries(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(nil)
	published := 0
	bus.Subscribe(events.KindSearchLogs, func(events.Event) { published++ })
	analytics, _ := newTestAnalytics(t, bus)

	logged, err := analytics.LogSearch(ctx, "", 4, users.User{ID: "u-reader"})
	if err != nil || logged {
		t.Fatalf("expected blank query to be skipped, logged=%v err=%v", logged, err)
	}
	if _, err := analytics.LogSearch(ctx, "   ", 0, users.User{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if top := analytics.TopQueries(ctx, 30, 10); len(top) != 0 {
		t.Fatalf("expected no top queries, got %#v", top)
	}
	if published != 0 {
		t.Fatalf("expected no events, got %d", published)
	}
}

func TestLogSearchRecordsViewer(t *testing.T) {
	ctx := context.Background()
	analytics, _ := newTestAnalytics(t, events.NewBus(nil))

	if _, err := analytics.LogSearch(ctx, "  VPN setup ", 2, users.User{ID: "u-admin", Role: users.RoleAdmin}); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}
	if _, err := analytics.LogSearch(ctx, "git", 1, users.User{}); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}
	entries := analytics.Entries(ctx, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Query != "VPN setup" || entries[0].UserID != "u-admin" || entries[0].Role != users.RoleAdmin {
		t.Fatalf("unexpected first entry %#v", entries[0])
	}
	if entries[1].UserID != "" || entries[1].Role != "" {
		t.Fatalf("anonymous searches carry no identity, got %#v", entries[1])
	}
}

func TestTopQueriesGroupsCaseInsensitivelyWithinWindow(t *testing.T) {
	ctx := context.Background()
	analytics, clock := newTestAnalytics(t, events.NewBus(nil))

	mustLogSearch(t, analytics, "old query", 1)
	clock.now = clock.now.Add(10 * day)
	mustLogSearch(t, analytics, "VPN", 3)
	mustLogSearch(t, analytics, "git", 0)
	mustLogSearch(t, analytics, "vpn", 0)
	mustLogSearch(t, analytics, "Vpn", 2)
	mustLogSearch(t, analytics, "Git", 1)
	mustLogSearch(t, analytics, "figma", 0)

	top := analytics.TopQueries(ctx, 7, 10)
	if len(top) != 3 {
		t.Fatalf("expected 3 grouped queries, got %#v", top)
	}
	expected := []QueryStat{
		{Query: "VPN", Count: 3, ZeroResults: 1},
		{Query: "git", Count: 2, ZeroResults: 1},
		{Query: "figma", Count: 1, ZeroResults: 1},
	}
	for index, stat := range expected {
		if top[index] != stat {
			t.Fatalf("expected %#v at %d, got %#v", stat, index, top[index])
		}
	}
	if limited := analytics.TopQueries(ctx, 7, 1); len(limited) != 1 || limited[0].Query != "VPN" {
		t.Fatalf("unexpected limited result %#v", limited)
	}
	if all := analytics.TopQueries(ctx, 30, 0); len(all) != 4 {
		t.Fatalf("expected wider window to include old query, got %#v", all)
	}
}

func TestSummaryReportsZeroResultRate(t *testing.T) {
	ctx := context.Background()
	analytics, _ := newTestAnalytics(t, events.NewBus(nil))
	if summary := analytics.Summary(ctx, 7); summary != (Summary{}) {
		t.Fatalf("expected empty summary, got %#v", summary)
	}
	mustLogSearch(t, analytics, "vpn", 0)
	mustLogSearch(t, analytics, "VPN", 2)
	mustLogSearch(t, analytics, "payroll", 0)
	mustLogSearch(t, analytics, "git", 5)

	summary := analytics.Summary(ctx, 7)
	if summary.TotalSearches != 4 || summary.ZeroResults != 2 || summary.UniqueQueries != 3 {
		t.Fatalf("unexpected summary %#v", summary)
	}
	if summary.ZeroResultRate != 0.5 {
		t.Fatalf("expected rate 0.5, got %v", summary.ZeroResultRate)
	}
}

func TestTrimLogsDropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	analytics, clock := newTestAnalytics(t, events.NewBus(nil))
	mustLogSearch(t, analytics, "first", 1)
	mustLogSearch(t, analytics, "second", 1)
	clock.now = clock.now.Add(40 * day)
	mustLogSearch(t, analytics, "recent", 1)

	removed, err := analytics.TrimLogs(ctx, 30*day)
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, removed=%d err=%v", removed, err)
	}
	entries := analytics.Entries(ctx, 0)
	if len(entries) != 1 || entries[0].Query != "recent" {
		t.Fatalf("unexpected remaining entries %#v", entries)
	}
	removed, err = analytics.TrimLogs(ctx, 30*day)
	if err != nil || removed != 0 {
		t.Fatalf("expected idempotent trim, removed=%d err=%v", removed, err)
	}
}
