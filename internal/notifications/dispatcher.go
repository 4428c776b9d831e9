package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/ids"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

// Type classifies the tone of a notification.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

const (
	opDispatcherNew   = "notifications.dispatcher.new"
	opNotify          = "notifications.notify"
	opNotifyRole      = "notifications.notify_role"
	opNotifyBookmarks = "notifications.notify_bookmark_holders"
	opMarkRead        = "notifications.mark_read"
	opMarkAllRead     = "notifications.mark_all_read"
	fieldUserID       = "user_id"
	fieldManualID     = "manual_id"
)

var (
	errMissingStore      = errors.New("store is required")
	errMissingIDProvider = errors.New("id provider is required")
	// ErrMissingRecipient indicates a notification without a target user.
	ErrMissingRecipient = errors.New("notifications: recipient user id is required")
	// ErrInvalidType indicates a notification type outside info/success/warning/error.
	ErrInvalidType = errors.New("notifications: invalid type")
)

// Notification is one inbox entry addressed to a single user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// BookmarkHolders resolves which users bookmarked a manual.
type BookmarkHolders interface {
	HoldersOf(ctx context.Context, manualID string) []string
}

// RoleDirectory lists users by role for fan-out.
type RoleDirectory interface {
	ListByRole(ctx context.Context, role users.Role) []users.User
}

// DispatcherConfig describes the dependencies of the dispatcher.
type DispatcherConfig struct {
	Store      storage.Store
	Publisher  events.Publisher
	Bookmarks  BookmarkHolders
	Directory  RoleDirectory
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Dispatcher appends notifications to user inboxes and maintains read state.
type Dispatcher struct {
	mu         sync.Mutex
	store      storage.Store
	publisher  events.Publisher
	bookmarks  BookmarkHolders
	directory  RoleDirectory
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewDispatcher constructs a notification dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opDispatcherNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opDispatcherNew, "missing_id_provider", errMissingIDProvider)
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
	return &Dispatcher{
		store:      cfg.Store,
		publisher:  publisher,
		bookmarks:  cfg.Bookmarks,
		directory:  cfg.Directory,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// ParseType validates raw input against the notification types.
func ParseType(rawInput string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(rawInput))) {
	case TypeInfo:
		return TypeInfo, nil
	case TypeSuccess:
		return TypeSuccess, nil
	case TypeWarning:
		return TypeWarning, nil
	case TypeError:
		return TypeError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, rawInput)
	}
}

// Notify appends a notification for userID.
func (d *Dispatcher) Notify(ctx context.Context, userID, message string, notificationType Type, link string) (Notification, error) {
	created, err := d.enqueue(ctx, opNotify, []string{userID}, message, notificationType, link)
	if err != nil {
		return Notification{}, err
	}
	return created[0], nil
}

// NotifyRole sends the same notification to every user holding role.
// It returns the number of notifications enqueued.
func (d *Dispatcher) NotifyRole(ctx context.Context, role users.Role, message string, notificationType Type, link string) (int, error) {
	if d.directory == nil {
		return 0, nil
	}
	recipients := make([]string, 0)
	for _, user := range d.directory.ListByRole(ctx, role) {
		recipients = append(recipients, user.ID)
	}
	if len(recipients) == 0 {
		return 0, nil
	}
	created, err := d.enqueue(ctx, opNotifyRole, recipients, message, notificationType, link)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

// NotifyBookmarkHolders sends one info notification to every distinct user
// bookmarking manualID. An empty holder set is a no-op.
func (d *Dispatcher) NotifyBookmarkHolders(ctx context.Context, manualID, title, newVersion string) (int, error) {
	if d.bookmarks == nil {
		return 0, nil
	}
	holders := d.bookmarks.HoldersOf(ctx, manualID)
	if len(holders) == 0 {
		return 0, nil
	}
	message := fmt.Sprintf("A manual you bookmarked, %q, was updated", title)
	if version := strings.TrimSpace(newVersion); version != "" {
		message = fmt.Sprintf("A manual you bookmarked, %q, was updated to v%s", title, version)
	}
	created, err := d.enqueue(ctx, opNotifyBookmarks, holders, message, TypeInfo, ManualLink(manualID))
	if err != nil {
		d.logger.Warn("bookmark fan-out failed", zap.String(fieldManualID, manualID), zap.Error(err))
		return 0, err
	}
	return len(created), nil
}

// MarkRead flags a single notification as read. It reports whether one was found.
// Every call publishes one change event.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	d.mu.Lock()
	notifications := d.load(ctx)
	found := false
	userID := ""
	for index := range notifications {
		if notifications[index].ID == notificationID {
			notifications[index].Read = true
			userID = notifications[index].UserID
			found = true
			break
		}
	}
	if !found {
		d.mu.Unlock()
		d.publisher.Publish(events.Event{Kind: events.KindNotifications, IDs: []string{notificationID}})
		return false, nil
	}
	err := storage.SaveJSON(ctx, d.store, storage.KeyNotifications, notifications)
	d.mu.Unlock()
	if err != nil {
		serviceerr.Log(d.logger, opMarkRead, "store_write_failed", err)
		return false, serviceerr.New(opMarkRead, "store_write_failed", err)
	}
	d.publisher.Publish(events.Event{Kind: events.KindNotifications, IDs: []string{notificationID}, UserID: userID})
	return true, nil
}

// MarkAllReadForUser flags every unread notification of userID as read and
// publishes a single change event, even when nothing was unread. It returns the number of notifications changed.
func (d *Dispatcher) MarkAllReadForUser(ctx context.Context, userID string) (int, error) {
	d.mu.Lock()
	notifications := d.load(ctx)
	changed := make([]string, 0)
	for index := range notifications {
		if notifications[index].UserID == userID && !notifications[index].Read {
			notifications[index].Read = true
			changed = append(changed, notifications[index].ID)
		}
	}
	if len(changed) == 0 {
		d.mu.Unlock()
		d.publisher.Publish(events.Event{Kind: events.KindNotifications, UserID: userID})
		return 0, nil
	}
	err := storage.SaveJSON(ctx, d.store, storage.KeyNotifications, notifications)
	d.mu.Unlock()
	if err != nil {
		serviceerr.Log(d.logger, opMarkAllRead, "store_write_failed", err, zap.String(fieldUserID, userID))
		return 0, serviceerr.New(opMarkAllRead, "store_write_failed", err)
	}
	d.publisher.Publish(events.Event{Kind: events.KindNotifications, IDs: changed, UserID: userID})
	return len(changed), nil
}

// ListForUser returns the inbox of userID, most recent first.
func (d *Dispatcher) ListForUser(ctx context.Context, userID string) []Notification {
	notifications := d.load(ctx)
	inbox := make([]Notification, 0)
	for index := len(notifications) - 1; index >= 0; index-- {
		if notifications[index].UserID == userID {
			inbox = append(inbox, notifications[index])
		}
	}
	sort.SliceStable(inbox, func(i, j int) bool {
		return inbox[i].CreatedAt.After(inbox[j].CreatedAt)
	})
	return inbox
}

// UnreadCount returns how many notifications of userID are unread.
func (d *Dispatcher) UnreadCount(ctx context.Context, userID string) int {
	count := 0
	for _, notification := range d.load(ctx) {
		if notification.UserID == userID && !notification.Read {
			count++
		}
	}
	return count
}

// ManualLink is the in-portal link to a manual.
func ManualLink(manualID string) string {
	return "/manuals/" + manualID
}

func (d *Dispatcher) enqueue(ctx context.Context, operation string, recipients []string, message string, notificationType Type, link string) ([]Notification, error) {
	parsedType, err := ParseType(string(notificationType))
	if err != nil {
		return nil, serviceerr.New(operation, "invalid_type", err)
	}
	created := make([]Notification, 0, len(recipients))
	now := d.clock().UTC()
	for _, recipient := range recipients {
		userID := strings.TrimSpace(recipient)
		if userID == "" {
			return nil, serviceerr.New(operation, "missing_recipient", ErrMissingRecipient)
		}
		notificationID, err := d.idProvider.NewID()
		if err != nil {
			serviceerr.Log(d.logger, operation, "id_generation_failed", err, zap.String(fieldUserID, userID))
			return nil, serviceerr.New(operation, "id_generation_failed", err)
		}
		created = append(created, Notification{
			ID:        notificationID,
			UserID:    userID,
			Message:   message,
			Type:      parsedType,
			Link:      link,
			CreatedAt: now,
		})
	}

	d.mu.Lock()
	notifications := append(d.load(ctx), created...)
	err = storage.SaveJSON(ctx, d.store, storage.KeyNotifications, notifications)
	d.mu.Unlock()
	if err != nil {
		serviceerr.Log(d.logger, operation, "store_write_failed", err)
		return nil, serviceerr.New(operation, "store_write_failed", err)
	}

	createdIDs := make([]string, 0, len(created))
	for _, notification := range created {
		createdIDs = append(createdIDs, notification.ID)
	}
	event := events.Event{Kind: events.KindNotifications, IDs: createdIDs}
	if len(created) == 1 {
		event.UserID = created[0].UserID
	}
	d.publisher.Publish(event)
	return created, nil
}

func (d *Dispatcher) load(ctx context.Context) []Notification {
	return storage.LoadJSON[[]Notification](ctx, d.store, storage.KeyNotifications, d.logger)
}
