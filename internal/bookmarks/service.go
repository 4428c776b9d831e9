package bookmarks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

const (
	opServiceNew  = "bookmarks.service.new"
	opAdd         = "bookmarks.add"
	opRemove      = "bookmarks.remove"
	fieldUserID   = "user_id"
	fieldManualID = "manual_id"
)

var (
	errMissingStore = errors.New("store is required")
	// ErrMissingIdentity indicates a bookmark without a user or manual id.
	ErrMissingIdentity = errors.New("bookmarks: user id and manual id are required")
)

// Bookmark is a user's saved reference to a manual.
type Bookmark struct {
	UserID      string    `json:"userId"`
	ManualID    string    `json:"manualId"`
	ManualTitle string    `json:"manualTitle"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StatsRecorder receives bookmark count changes for user statistics.
type StatsRecorder interface {
	RecordStat(ctx context.Context, id string, kind users.StatKind, delta int) error
}

// ServiceConfig describes the dependencies of the bookmark service.
type ServiceConfig struct {
	Store     storage.Store
	Publisher events.Publisher
	Stats     StatsRecorder
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service owns the (user, manual) bookmark relation.
type Service struct {
	mu        sync.Mutex
	store     storage.Store
	publisher events.Publisher
	stats     StatsRecorder
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the bookmark service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opServiceNew, "missing_store", errMissingStore)
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
	return &Service{store: cfg.Store, publisher: publisher, stats: cfg.Stats, clock: clock, logger: logger}, nil
}

// Add bookmarks manualID for userID. It reports false when the pair already exists.
func (s *Service) Add(ctx context.Context, userID, manualID, manualTitle string) (bool, error) {
	userID, manualID = strings.TrimSpace(userID), strings.TrimSpace(manualID)
	if userID == "" || manualID == "" {
		return false, serviceerr.New(opAdd, "missing_identity", ErrMissingIdentity)
	}

	s.mu.Lock()
	bookmarks := s.load(ctx)
	for _, bookmark := range bookmarks {
		if bookmark.UserID == userID && bookmark.ManualID == manualID {
			s.mu.Unlock()
			return false, nil
		}
	}
	bookmarks = append(bookmarks, Bookmark{
		UserID:      userID,
		ManualID:    manualID,
		ManualTitle: manualTitle,
		CreatedAt:   s.clock().UTC(),
	})
	err := storage.SaveJSON(ctx, s.store, storage.KeyBookmarks, bookmarks)
	s.mu.Unlock()
	if err != nil {
		serviceerr.Log(s.logger, opAdd, "store_write_failed", err, zap.String(fieldUserID, userID), zap.String(fieldManualID, manualID))
		return false, serviceerr.New(opAdd, "store_write_failed", err)
	}

	s.recordStat(ctx, userID, 1)
	s.publisher.Publish(events.Event{Kind: events.KindBookmarks, IDs: []string{manualID}, UserID: userID})
	return true, nil
}

// Remove deletes the bookmark pair. It reports false when there was nothing to remove.
func (s *Service) Remove(ctx context.Context, userID, manualID string) (bool, error) {
	userID, manualID = strings.TrimSpace(userID), strings.TrimSpace(manualID)
	s.mu.Lock()
	bookmarks := s.load(ctx)
	kept := bookmarks[:0]
	removed := false
	for _, bookmark := range bookmarks {
		if bookmark.UserID == userID && bookmark.ManualID == manualID {
			removed = true
			continue
		}
		kept = append(kept, bookmark)
	}
	if !removed {
		s.mu.Unlock()
		return false, nil
	}
	err := storage.SaveJSON(ctx, s.store, storage.KeyBookmarks, kept)
	s.mu.Unlock()
	if err != nil {
		serviceerr.Log(s.logger, opRemove, "store_write_failed", err, zap.String(fieldUserID, userID), zap.String(fieldManualID, manualID))
		return false, serviceerr.New(opRemove, "store_write_failed", err)
	}

	s.recordStat(ctx, userID, -1)
	s.publisher.Publish(events.Event{Kind: events.KindBookmarks, IDs: []string{manualID}, UserID: userID})
	return true, nil
}

// Toggle flips the bookmark and returns the resulting state.
func (s *Service) Toggle(ctx context.Context, userID, manualID, manualTitle string) (bool, error) {
	if s.IsBookmarked(ctx, userID, manualID) {
		if _, err := s.Remove(ctx, userID, manualID); err != nil {
			return true, err
		}
		return false, nil
	}
	if _, err := s.Add(ctx, userID, manualID, manualTitle); err != nil {
		return false, err
	}
	return true, nil
}

// IsBookmarked reports whether userID holds a bookmark on manualID.
func (s *Service) IsBookmarked(ctx context.Context, userID, manualID string) bool {
	if strings.TrimSpace(userID) == "" {
		return false
	}
	for _, bookmark := range s.load(ctx) {
		if bookmark.UserID == userID && bookmark.ManualID == manualID {
			return true
		}
	}
	return false
}

// ListForUser returns the user's bookmarks, most recent first.
func (s *Service) ListForUser(ctx context.Context, userID string) []Bookmark {
	bookmarks := s.load(ctx)
	result := make([]Bookmark, 0)
	for index := len(bookmarks) - 1; index >= 0; index-- {
		if bookmarks[index].UserID == userID {
			result = append(result, bookmarks[index])
		}
	}
	return result
}

// HoldersOf returns the distinct users bookmarking manualID in first-bookmark order.
func (s *Service) HoldersOf(ctx context.Context, manualID string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	holders := make([]string, 0)
	for _, bookmark := range s.load(ctx) {
		if bookmark.ManualID != manualID {
			continue
		}
		if seen.Add(bookmark.UserID) {
			holders = append(holders, bookmark.UserID)
		}
	}
	return holders
}

func (s *Service) recordStat(ctx context.Context, userID string, delta int) {
	if s.stats == nil {
		return
	}
	if err := s.stats.RecordStat(ctx, userID, users.StatBookmarks, delta); err != nil {
		s.logger.Warn("bookmark stat update failed", zap.String(fieldUserID, userID), zap.Error(err))
	}
}

func (s *Service) load(ctx context.Context) []Bookmark {
	return storage.LoadJSON[[]Bookmark](ctx, s.store, storage.KeyBookmarks, s.logger)
}
