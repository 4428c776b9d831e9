package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"go.uber.org/zap"
)

const (
	opDirectoryNew = "users.directory.new"
	opEnsureSeeded = "users.ensure_seeded"
	opUpsertUser   = "users.upsert"
	opSetRole      = "users.set_role"
	opRecordStat   = "users.record_stat"
	fieldUserID    = "user_id"
)

var errMissingStore = errors.New("store is required")

// DirectoryConfig describes the dependencies of the user directory.
type DirectoryConfig struct {
	Store     storage.Store
	Publisher events.Publisher
	Logger    *zap.Logger
}

// Directory is the store-backed registry of portal users.
type Directory struct {
	mu        sync.Mutex
	store     storage.Store
	publisher events.Publisher
	logger    *zap.Logger
}

// NewDirectory constructs the user directory.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opDirectoryNew, "missing_store", errMissingStore)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: cfg.Store, publisher: publisher, logger: logger}, nil
}

// SeedUsers returns the demo accounts installed into an empty directory.
func SeedUsers() []User {
	return []User{
		{ID: "u-admin", Username: "admin", Name: "Alex Admin", Team: "Platform", Role: RoleAdmin, Preferences: Preferences{Language: "en", Notifications: true}},
		{ID: "u-creator", Username: "creator", Name: "Casey Creator", Team: "Engineering", Role: RoleCreator, Preferences: Preferences{Language: "en", Notifications: true}},
		{ID: "u-reader", Username: "reader", Name: "Riley Reader", Team: "Sales", Role: RoleUser, Preferences: Preferences{Language: "en", Notifications: true}},
	}
}

// EnsureSeeded installs seeds when the directory is empty.
func (d *Directory) EnsureSeeded(ctx context.Context, seeds []User) error {
	d.mu.Lock()
	existing := d.load(ctx)
	if len(existing) > 0 || len(seeds) == 0 {
		d.mu.Unlock()
		return nil
	}
	installed := make([]User, 0, len(seeds))
	for _, seed := range seeds {
		installed = append(installed, seed.withDerivedPermissions())
	}
	err := storage.SaveJSON(ctx, d.store, storage.KeyUsers, installed)
	d.mu.Unlock()
	if err != nil {
		serviceerr.Log(d.logger, opEnsureSeeded, "store_write_failed", err)
		return serviceerr.New(opEnsureSeeded, "store_write_failed", err)
	}
	d.publisher.Publish(events.Event{Kind: events.KindUsers, IDs: userIDs(installed)})
	return nil
}

// All returns every user in stored order.
func (d *Directory) All(ctx context.Context) []User {
	return d.load(ctx)
}

// FindByID looks a user up by identifier.
func (d *Directory) FindByID(ctx context.Context, id string) (User, bool) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return User{}, false
	}
	for _, user := range d.load(ctx) {
		if user.ID == trimmed {
			return user, true
		}
	}
	return User{}, false
}

// FindByName returns the first user whose full name or username equals name.
func (d *Directory) FindByName(ctx context.Context, name string) (User, bool) {
	for _, user := range d.load(ctx) {
		if user.MatchesName(name) {
			return user, true
		}
	}
	return User{}, false
}

// ListByRole returns the users holding role, in stored order.
func (d *Directory) ListByRole(ctx context.Context, role Role) []User {
	matches := make([]User, 0)
	for _, user := range d.load(ctx) {
		if user.Role == role {
			matches = append(matches, user)
		}
	}
	return matches
}

// Upsert inserts or replaces a user. Permissions are always re-derived from the role.
func (d *Directory) Upsert(ctx context.Context, user User) error {
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return serviceerr.New(opUpsertUser, "invalid_user_id", ErrInvalidUserID)
	}
	if _, err := ParseRole(string(user.Role)); err != nil {
		return serviceerr.New(opUpsertUser, "invalid_role", err)
	}
	user = user.withDerivedPermissions()

	d.mu.Lock()
	users := d.load(ctx)
	replaced := false
	for index := range users {
		if users[index].ID == user.ID {
			users[index] = user
			replaced = true
			break
		}
	}
	if !replaced {
		users = append(users, user)
	}
	err := storage.SaveJSON(ctx, d.store, storage.KeyUsers, users)
	d.mu.Unlock()
	if err != nil {
		serviceerr.Log(d.logger, opUpsertUser, "store_write_failed", err, zap.String(fieldUserID, user.ID))
		return serviceerr.New(opUpsertUser, "store_write_failed", err)
	}
	d.publisher.Publish(events.Event{Kind: events.KindUsers, IDs: []string{user.ID}, UserID: user.ID})
	return nil
}

// SetRole changes the role of the user with id and returns the updated record.
func (d *Directory) SetRole(ctx context.Context, id string, role Role) (User, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return User{}, serviceerr.New(opSetRole, "invalid_role", err)
	}
	updated, err := d.mutate(ctx, id, func(user *User) {
		user.Role = role
		user.Permissions = PermissionsFor(role)
	})
	if err != nil {
		return User{}, wrapMutationError(opSetRole, err)
	}
	return updated, nil
}

// RecordStat adjusts one of the user's activity counters. Unknown users are ignored.
func (d *Directory) RecordStat(ctx context.Context, id string, kind StatKind, delta int) error {
	if strings.TrimSpace(id) == "" || delta == 0 {
		return nil
	}
	_, err := d.mutate(ctx, id, func(user *User) {
		user.Stats.add(kind, delta)
	})
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return wrapMutationError(opRecordStat, err)
	}
	return nil
}

func (d *Directory) mutate(ctx context.Context, id string, apply func(*User)) (User, error) {
	trimmed := strings.TrimSpace(id)
	d.mu.Lock()
	users := d.load(ctx)
	index := -1
	for candidate := range users {
		if users[candidate].ID == trimmed {
			index = candidate
			break
		}
	}
	if index < 0 {
		d.mu.Unlock()
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, trimmed)
	}
	apply(&users[index])
	updated := users[index]
	err := storage.SaveJSON(ctx, d.store, storage.KeyUsers, users)
	d.mu.Unlock()
	if err != nil {
		serviceerr.Log(d.logger, "users.mutate", "store_write_failed", err, zap.String(fieldUserID, trimmed))
		return User{}, err
	}
	d.publisher.Publish(events.Event{Kind: events.KindUsers, IDs: []string{trimmed}, UserID: trimmed})
	return updated, nil
}

func (d *Directory) load(ctx context.Context) []User {
	users := storage.LoadJSON[[]User](ctx, d.store, storage.KeyUsers, d.logger)
	for index := range users {
		users[index] = users[index].withDerivedPermissions()
	}
	return users
}

func wrapMutationError(operation string, err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return serviceerr.New(operation, "user_not_found", err)
	}
	return serviceerr.New(operation, "store_write_failed", err)
}

func userIDs(users []User) []string {
	identifiers := make([]string, 0, len(users))
	for _, user := range users {
		identifiers = append(identifiers, user.ID)
	}
	return identifiers
}
