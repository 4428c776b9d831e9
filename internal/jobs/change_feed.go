package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// StoreChangeFeedName names the store change feed job.
const StoreChangeFeedName = "store-change-feed"

var (
	errMissingChangeSource = errors.New("jobs: change source is required")
	errMissingPublisher    = errors.New("jobs: publisher is required")
)

// ChangeSource lists the store keys written at or after an instant.
type ChangeSource interface {
	UpdatedSince(ctx context.Context, since time.Time) ([]string, error)
}

// StoreChangeFeedConfig describes the store change feed.
type StoreChangeFeedConfig struct {
	Source    ChangeSource
	Publisher events.Publisher
	// Kinds maps a store key to the event announcing it. Unmapped keys are ignored.
	Kinds    map[string]events.Kind
	Schedule string
	Clock    func() time.Time
	Logger   *zap.Logger
}

// StoreChangeFeed republishes writes made by other processes sharing the store,
// so subscribers re-fetch the affected collections.
type StoreChangeFeed struct {
	source    ChangeSource
	publisher events.Publisher
	kinds     map[string]events.Kind
	schedule  string
	clock     func() time.Time
	logger    *zap.Logger

	mu       sync.Mutex
	lastPoll time.Time
}

// NewStoreChangeFeed constructs the change feed. The first run reports writes
// made since construction.
func NewStoreChangeFeed(cfg StoreChangeFeedConfig) (*StoreChangeFeed, error) {
	if cfg.Source == nil {
		return nil, errMissingChangeSource
	}
	if cfg.Publisher == nil {
		return nil, errMissingPublisher
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	kinds := make(map[string]events.Kind, len(cfg.Kinds))
	for key, kind := range cfg.Kinds {
		kinds[key] = kind
	}
	return &StoreChangeFeed{
		source:    cfg.Source,
		publisher: cfg.Publisher,
		kinds:     kinds,
		schedule:  cfg.Schedule,
		clock:     clock,
		logger:    logger,
		lastPoll:  clock(),
	}, nil
}

// Name implements CronJob.
func (f *StoreChangeFeed) Name() string {
	return StoreChangeFeedName
}

// Schedule implements CronJob.
func (f *StoreChangeFeed) Schedule() string {
	return f.schedule
}

// Run publishes one event per changed kind since the previous run.
func (f *StoreChangeFeed) Run(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	polledAt := f.clock()
	keys, err := f.source.UpdatedSince(ctx, f.lastPoll)
	if err != nil {
		return err
	}
	f.lastPoll = polledAt

	announced := mapset.NewThreadUnsafeSet[events.Kind]()
	for _, key := range keys {
		kind, ok := f.kinds[key]
		if !ok || !announced.Add(kind) {
			continue
		}
		f.publisher.Publish(events.Event{Kind: kind})
	}
	if announced.Cardinality() > 0 {
		f.logger.Debug("store changes announced", zap.Strings("keys", keys), zap.Int("kinds", announced.Cardinality()))
	}
	return nil
}
