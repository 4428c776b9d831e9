package interactions

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

const (
	opLedgerNew   = "interactions.ledger.new"
	opRecordView  = "interactions.record_view"
	opToggleLike  = "interactions.toggle_like"
	opDownload    = "interactions.increment_downloads"
	fieldManualID = "manual_id"
	fieldUserID   = "user_id"
)

var errMissingStore = errors.New("store is required")

// record is the interaction state of one manual.
type record struct {
	Views     int
	Downloads int
	LikedBy   mapset.Set[string]
	ViewedBy  mapset.Set[string]
}

// recordJSON is the persisted form of record. Member lists are sorted.
type recordJSON struct {
	Views     int      `json:"views"`
	Likes     int      `json:"likes"`
	Downloads int      `json:"downloads"`
	LikedBy   []string `json:"likedBy,omitempty"`
	ViewedBy  []string `json:"viewedBy,omitempty"`
}

func (r record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Views:     r.Views,
		Likes:     r.likes(),
		Downloads: r.Downloads,
		LikedBy:   sortedMembers(r.LikedBy),
		ViewedBy:  sortedMembers(r.ViewedBy),
	})
}

func (r *record) UnmarshalJSON(data []byte) error {
	var wire recordJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Views = wire.Views
	r.Downloads = wire.Downloads
	r.LikedBy = mapset.NewThreadUnsafeSet(wire.LikedBy...)
	r.ViewedBy = mapset.NewThreadUnsafeSet(wire.ViewedBy...)
	return nil
}

// ensureSets initializes the member sets of a record that was never stored.
func (r *record) ensureSets() {
	if r.LikedBy == nil {
		r.LikedBy = mapset.NewThreadUnsafeSet[string]()
	}
	if r.ViewedBy == nil {
		r.ViewedBy = mapset.NewThreadUnsafeSet[string]()
	}
}

func (r record) likes() int {
	if r.LikedBy == nil {
		return 0
	}
	return r.LikedBy.Cardinality()
}

func (r record) likedBy(userID string) bool {
	return r.LikedBy != nil && r.LikedBy.Contains(userID)
}

func sortedMembers(set mapset.Set[string]) []string {
	if set == nil || set.Cardinality() == 0 {
		return nil
	}
	members := set.ToSlice()
	slices.Sort(members)
	return members
}

// Stats is the public counter view of a manual.
type Stats struct {
	Views     int
	Likes     int
	Downloads int
}

// EnhancedManual joins a manual with its counters and viewer-relative flags.
type EnhancedManual struct {
	manuals.Manual
	Views        int  `json:"views"`
	Likes        int  `json:"likes"`
	Downloads    int  `json:"downloads"`
	HasLiked     bool `json:"hasLiked"`
	IsBookmarked bool `json:"isBookmarked"`
}

// BookmarkChecker answers the bookmark flag of the read model.
type BookmarkChecker interface {
	IsBookmarked(ctx context.Context, userID, manualID string) bool
}

// StatsRecorder receives per-user activity counters.
type StatsRecorder interface {
	RecordStat(ctx context.Context, id string, kind users.StatKind, delta int) error
}

// LedgerConfig describes the dependencies of the ledger.
type LedgerConfig struct {
	Store     storage.Store
	Publisher events.Publisher
	Bookmarks BookmarkChecker
	Stats     StatsRecorder
	Logger    *zap.Logger
}

// Ledger keeps per-manual views, likes and downloads.
type Ledger struct {
	mu        sync.Mutex
	store     storage.Store
	publisher events.Publisher
	bookmarks BookmarkChecker
	stats     StatsRecorder
	logger    *zap.Logger
}

// NewLedger constructs a ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opLedgerNew, "missing_store", errMissingStore)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:     cfg.Store,
		publisher: publisher,
		bookmarks: cfg.Bookmarks,
		stats:     cfg.Stats,
		logger:    logger,
	}, nil
}

// RecordView counts a view. A known viewer counts once per manual; anonymous
// views always count. It reports whether the counter moved.
func (l *Ledger) RecordView(ctx context.Context, manualID, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	counted := false
	err := l.mutate(ctx, opRecordView, manualID, func(entry *record) bool {
		if userID == "" {
			entry.Views++
			counted = true
			return true
		}
		if !entry.ViewedBy.Add(userID) {
			return false
		}
		entry.Views++
		counted = true
		return true
	})
	if err != nil {
		return false, err
	}
	if counted && userID != "" {
		l.recordStat(ctx, userID, users.StatViews, 1)
	}
	return counted, nil
}

// ToggleLike flips the viewer's like and returns the new state and like count.
// An empty user id changes nothing and reports the current count.
func (l *Ledger) ToggleLike(ctx context.Context, manualID, userID string) (bool, int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, l.GetStats(ctx, manualID).Likes, nil
	}
	liked := false
	count := 0
	err := l.mutate(ctx, opToggleLike, manualID, func(entry *record) bool {
		if entry.LikedBy.Contains(userID) {
			entry.LikedBy.Remove(userID)
		} else {
			entry.LikedBy.Add(userID)
			liked = true
		}
		count = entry.likes()
		return true
	})
	if err != nil {
		return false, 0, err
	}
	delta := -1
	if liked {
		delta = 1
	}
	l.recordStat(ctx, userID, users.StatLikes, delta)
	return liked, count, nil
}

// IncrementDownloads counts a download and returns the new total.
func (l *Ledger) IncrementDownloads(ctx context.Context, manualID string) (int, error) {
	total := 0
	err := l.mutate(ctx, opDownload, manualID, func(entry *record) bool {
		entry.Downloads++
		total = entry.Downloads
		return true
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// GetStats returns the counters of manualID, zeros when nothing was recorded.
func (l *Ledger) GetStats(ctx context.Context, manualID string) Stats {
	entry, ok := l.load(ctx)[manualID]
	if !ok {
		return Stats{}
	}
	return Stats{Views: entry.Views, Likes: entry.likes(), Downloads: entry.Downloads}
}

// GetEnhanced joins manual with its counters from the perspective of userID.
func (l *Ledger) GetEnhanced(ctx context.Context, manual manuals.Manual, userID string) EnhancedManual {
	return l.enhance(ctx, l.load(ctx), manual, userID)
}

// EnhanceAll joins every manual with its counters, preserving order.
func (l *Ledger) EnhanceAll(ctx context.Context, list []manuals.Manual, userID string) []EnhancedManual {
	entries := l.load(ctx)
	enhanced := make([]EnhancedManual, 0, len(list))
	for _, manual := range list {
		enhanced = append(enhanced, l.enhance(ctx, entries, manual, userID))
	}
	return enhanced
}

func (l *Ledger) enhance(ctx context.Context, entries map[string]record, manual manuals.Manual, userID string) EnhancedManual {
	entry := entries[manual.ID]
	result := EnhancedManual{
		Manual:    manual,
		Views:     entry.Views,
		Likes:     entry.likes(),
		Downloads: entry.Downloads,
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return result
	}
	result.HasLiked = entry.likedBy(userID)
	if l.bookmarks != nil {
		result.IsBookmarked = l.bookmarks.IsBookmarked(ctx, userID, manual.ID)
	}
	return result
}

// mutate applies change to the record of manualID and persists when change
// reports a modification.
func (l *Ledger) mutate(ctx context.Context, operation, manualID string, change func(*record) bool) error {
	manualID = strings.TrimSpace(manualID)
	if manualID == "" {
		return serviceerr.New(operation, "missing_manual_id", manuals.ErrInvalidManualID)
	}
	l.mu.Lock()
	entries := l.load(ctx)
	entry := entries[manualID]
	entry.ensureSets()
	if !change(&entry) {
		l.mu.Unlock()
		return nil
	}
	entries[manualID] = entry
	err := storage.SaveJSON(ctx, l.store, storage.KeyInteractions, entries)
	l.mu.Unlock()
	if err != nil {
		serviceerr.Log(l.logger, operation, "store_write_failed", err, zap.String(fieldManualID, manualID))
		return serviceerr.New(operation, "store_write_failed", err)
	}
	l.publisher.Publish(events.Event{Kind: events.KindInteractions, IDs: []string{manualID}})
	return nil
}

func (l *Ledger) recordStat(ctx context.Context, userID string, kind users.StatKind, delta int) {
	if l.stats == nil {
		return
	}
	if err := l.stats.RecordStat(ctx, userID, kind, delta); err != nil {
		l.logger.Warn("interaction stat update failed", zap.String(fieldUserID, userID), zap.Error(err))
	}
}

func (l *Ledger) load(ctx context.Context) map[string]record {
	entries := storage.LoadJSON[map[string]record](ctx, l.store, storage.KeyInteractions, l.logger)
	if entries == nil {
		entries = make(map[string]record)
	}
	return entries
}
