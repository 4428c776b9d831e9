package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

const (
	opAnalyticsNew = "search.analytics.new"
	opLogSearch    = "search.log_search"
	opTrimLogs     = "search.trim_logs"
	day            = 24 * time.Hour
)

var errMissingStore = errors.New("store is required")

// LogEntry is one recorded search.
type LogEntry struct {
	Query        string     `json:"query"`
	Timestamp    time.Time  `json:"timestamp"`
	ResultsCount int        `json:"resultsCount"`
	UserID       string     `json:"userId,omitempty"`
	Role         users.Role `json:"role,omitempty"`
}

// QueryStat aggregates the occurrences of one query within a window.
type QueryStat struct {
	Query       string
	Count       int
	ZeroResults int
}

// Summary aggregates every search within a window.
type Summary struct {
	TotalSearches  int
	ZeroResults    int
	ZeroResultRate float64
	UniqueQueries  int
}

// AnalyticsConfig describes the dependencies of the search log.
type AnalyticsConfig struct {
	Store     storage.Store
	Publisher events.Publisher
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Analytics is the append-only search log and its aggregations.
type Analytics struct {
	mu        sync.Mutex
	store     storage.Store
	publisher events.Publisher
	clock     func() time.Time
	logger    *zap.Logger
}

// NewAnalytics constructs the search log.
func NewAnalytics(cfg AnalyticsConfig) (*Analytics, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opAnalyticsNew, "missing_store", errMissingStore)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analytics{store: cfg.Store, publisher: publisher, clock: clock, logger: logger}, nil
}

// LogSearch appends a search to the log. Blank queries are not recorded and
// report false.
func (a *Analytics) LogSearch(ctx context.Context, query string, resultsCount int, viewer users.User) (bool, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false, nil
	}
	if resultsCount < 0 {
		resultsCount = 0
	}
	entry := LogEntry{
		Query:        trimmed,
		Timestamp:    a.clock().UTC(),
		ResultsCount: resultsCount,
	}
	if viewer.Authenticated() {
		entry.UserID = viewer.ID
		entry.Role = viewer.Role
	}

	a.mu.Lock()
	entries := append(a.load(ctx), entry)
	err := storage.SaveJSON(ctx, a.store, storage.KeySearchLogs, entries)
	a.mu.Unlock()
	if err != nil {
		serviceerr.Log(a.logger, opLogSearch, "store_write_failed", err, zap.String("query", trimmed))
		return false, serviceerr.New(opLogSearch, "store_write_failed", err)
	}
	a.publisher.Publish(events.Event{Kind: events.KindSearchLogs, UserID: entry.UserID})
	return true, nil
}

// Entries returns the log within the trailing window of days, oldest first.
// A non-positive days value returns the full log.
func (a *Analytics) Entries(ctx context.Context, days int) []LogEntry {
	entries := a.load(ctx)
	if days <= 0 {
		return entries
	}
	cutoff := a.clock().UTC().Add(-time.Duration(days) * day)
	windowed := make([]LogEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Timestamp.Before(cutoff) {
			windowed = append(windowed, entry)
		}
	}
	return windowed
}

// TopQueries groups searches case-insensitively within the trailing window,
// keeping the first spelling seen, and returns the limit most frequent.
// Equal counts keep first-occurrence order. A non-positive limit returns all.
func (a *Analytics) TopQueries(ctx context.Context, days, limit int) []QueryStat {
	positions := make(map[string]int)
	stats := make([]QueryStat, 0)
	for _, entry := range a.Entries(ctx, days) {
		key := strings.ToLower(entry.Query)
		position, ok := positions[key]
		if !ok {
			position = len(stats)
			positions[key] = position
			stats = append(stats, QueryStat{Query: entry.Query})
		}
		stats[position].Count++
		if entry.ResultsCount == 0 {
			stats[position].ZeroResults++
		}
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Count > stats[j].Count
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// Summary totals the searches within the trailing window.
func (a *Analytics) Summary(ctx context.Context, days int) Summary {
	entries := a.Entries(ctx, days)
	unique := make(map[string]struct{}, len(entries))
	summary := Summary{TotalSearches: len(entries)}
	for _, entry := range entries {
		unique[strings.ToLower(entry.Query)] = struct{}{}
		if entry.ResultsCount == 0 {
			summary.ZeroResults++
		}
	}
	summary.UniqueQueries = len(unique)
	if summary.TotalSearches > 0 {
		summary.ZeroResultRate = float64(summary.ZeroResults) / float64(summary.TotalSearches)
	}
	return summary
}

// TrimLogs drops entries older than retention and returns how many were removed.
func (a *Analytics) TrimLogs(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := a.clock().UTC().Add(-retention)

	a.mu.Lock()
	entries := a.load(ctx)
	kept := make([]LogEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Timestamp.Before(cutoff) {
			kept = append(kept, entry)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		a.mu.Unlock()
		return 0, nil
	}
	err := storage.SaveJSON(ctx, a.store, storage.KeySearchLogs, kept)
	a.mu.Unlock()
	if err != nil {
		serviceerr.Log(a.logger, opTrimLogs, "store_write_failed", err)
		return 0, serviceerr.New(opTrimLogs, "store_write_failed", err)
	}
	a.logger.Info("search log trimmed", zap.Int("removed", removed), zap.Int("kept", len(kept)))
	a.publisher.Publish(events.Event{Kind: events.KindSearchLogs})
	return removed, nil
}

func (a *Analytics) load(ctx context.Context) []LogEntry {
	return storage.LoadJSON[[]LogEntry](ctx, a.store, storage.KeySearchLogs, a.logger)
}
