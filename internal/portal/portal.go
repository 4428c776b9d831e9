package portal

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/bookmarks"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/ids"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/interactions"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/jobs"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/lifecycle"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/notifications"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/requests"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/search"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

const (
	defaultRetention          = 90 * 24 * time.Hour
	defaultRetentionSchedule  = "@daily"
	defaultChangeFeedSchedule = "@every 15s"
)

// storeKinds maps each persisted collection to the event announcing it.
var storeKinds = map[string]events.Kind{
	storage.KeyManuals:         events.KindManuals,
	storage.KeyBookmarks:       events.KindBookmarks,
	storage.KeyInteractions:    events.KindInteractions,
	storage.KeyNotifications:   events.KindNotifications,
	storage.KeyCreatorRequests: events.KindRequests,
	storage.KeySearchLogs:      events.KindSearchLogs,
	storage.KeyUsers:           events.KindUsers,
	storage.KeySession:         events.KindSession,
}

var (
	errMissingStore  = errors.New("portal: store is required")
	errMissingTokens = errors.New("portal: session tokens are required")
)

// Config describes the shared infrastructure every service is built on.
type Config struct {
	Store             storage.Store
	Tokens            users.TokenManager
	Bus               *events.Bus
	IDProvider        ids.Provider
	Clock             func() time.Time
	Seeds             []manuals.Manual
	Users             []users.User
	AdminLink         string
	SearchRetention   time.Duration
	RetentionSchedule string
	// ChangeFeedSchedule is the polling schedule for writes by other processes.
	// It only applies when Store can list recent writes.
	ChangeFeedSchedule string
	Logger             *zap.Logger
}

// Portal is the assembled content core.
type Portal struct {
	Bus           *events.Bus
	Manuals       *manuals.Repository
	Directory     *users.Directory
	Sessions      *users.Sessions
	Bookmarks     *bookmarks.Service
	Notifications *notifications.Dispatcher
	Ledger        *interactions.Ledger
	Analytics     *search.Analytics
	Lifecycle     *lifecycle.Engine
	Requests      *requests.Workflow
	Jobs          *jobs.Runner

	logger *zap.Logger
}

// New wires every service onto cfg.Store and seeds the user directory when empty.
// Nil seeds install the built-in manuals and demo accounts.
func New(ctx context.Context, cfg Config) (*Portal, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus(clock)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	seeds := cfg.Seeds
	if seeds == nil {
		seeds = manuals.SeedManuals()
	}
	seedUsers := cfg.Users
	if seedUsers == nil {
		seedUsers = users.SeedUsers()
	}
	retention := cfg.SearchRetention
	if retention <= 0 {
		retention = defaultRetention
	}
	schedule := cfg.RetentionSchedule
	if schedule == "" {
		schedule = defaultRetentionSchedule
	}

	directory, err := users.NewDirectory(users.DirectoryConfig{Store: cfg.Store, Publisher: bus, Logger: logger.Named("users")})
	if err != nil {
		return nil, err
	}
	if err := directory.EnsureSeeded(ctx, seedUsers); err != nil {
		return nil, err
	}
	sessions, err := users.NewSessions(users.SessionsConfig{Store: cfg.Store, Tokens: cfg.Tokens, Publisher: bus, Logger: logger.Named("sessions")})
	if err != nil {
		return nil, err
	}
	repository, err := manuals.NewRepository(manuals.RepositoryConfig{Store: cfg.Store, Publisher: bus, Seeds: seeds, Logger: logger.Named("manuals")})
	if err != nil {
		return nil, err
	}
	bookmarkService, err := bookmarks.NewService(bookmarks.ServiceConfig{
		Store:     cfg.Store,
		Publisher: bus,
		Stats:     directory,
		Clock:     clock,
		Logger:    logger.Named("bookmarks"),
	})
	if err != nil {
		return nil, err
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherConfig{
		Store:      cfg.Store,
		Publisher:  bus,
		Bookmarks:  bookmarkService,
		Directory:  directory,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     logger.Named("notifications"),
	})
	if err != nil {
		return nil, err
	}
	ledger, err := interactions.NewLedger(interactions.LedgerConfig{
		Store:     cfg.Store,
		Publisher: bus,
		Bookmarks: bookmarkService,
		Stats:     directory,
		Logger:    logger.Named("interactions"),
	})
	if err != nil {
		return nil, err
	}
	analytics, err := search.NewAnalytics(search.AnalyticsConfig{Store: cfg.Store, Publisher: bus, Clock: clock, Logger: logger.Named("search")})
	if err != nil {
		return nil, err
	}
	engine, err := lifecycle.NewEngine(lifecycle.EngineConfig{
		Manuals:    repository,
		Notifier:   dispatcher,
		Directory:  directory,
		IDProvider: idProvider,
		Clock:      clock,
		AdminLink:  cfg.AdminLink,
		Logger:     logger.Named("lifecycle"),
	})
	if err != nil {
		return nil, err
	}
	workflow, err := requests.NewWorkflow(requests.WorkflowConfig{
		Store:      cfg.Store,
		Publisher:  bus,
		Directory:  directory,
		Notifier:   dispatcher,
		Sessions:   sessions,
		IDProvider: idProvider,
		Clock:      clock,
		AdminLink:  cfg.AdminLink,
		Logger:     logger.Named("requests"),
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := jobs.NewSearchLogRetention(analytics, retention, schedule, logger.Named("jobs"))
	if err != nil {
		return nil, err
	}
	scheduled := []jobs.CronJob{retentionJob}
	if source, ok := cfg.Store.(jobs.ChangeSource); ok {
		feedSchedule := cfg.ChangeFeedSchedule
		if feedSchedule == "" {
			feedSchedule = defaultChangeFeedSchedule
		}
		feed, err := jobs.NewStoreChangeFeed(jobs.StoreChangeFeedConfig{
			Source:    source,
			Publisher: bus,
			Kinds:     storeKinds,
			Schedule:  feedSchedule,
			Clock:     clock,
			Logger:    logger.Named("jobs"),
		})
		if err != nil {
			return nil, err
		}
		scheduled = append(scheduled, feed)
	}
	runner, err := jobs.NewRunner(jobs.RunnerConfig{Jobs: scheduled, Logger: logger.Named("jobs")})
	if err != nil {
		return nil, err
	}

	for _, kind := range events.AllKinds() {
		bus.Subscribe(kind, func(event events.Event) {
			logger.Debug("state changed",
				zap.String("kind", string(event.Kind)),
				zap.Strings("ids", event.IDs),
				zap.String("user_id", event.UserID),
			)
		})
	}

	return &Portal{
		Bus:           bus,
		Manuals:       repository,
		Directory:     directory,
		Sessions:      sessions,
		Bookmarks:     bookmarkService,
		Notifications: dispatcher,
		Ledger:        ledger,
		Analytics:     analytics,
		Lifecycle:     engine,
		Requests:      workflow,
		Jobs:          runner,
		logger:        logger,
	}, nil
}
