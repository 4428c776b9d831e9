package manuals

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"go.uber.org/zap"
)

const (
	opRepositoryNew = "manuals.repository.new"
	opUpsert        = "manuals.upsert"
	opDelete        = "manuals.delete"
	fieldManualID   = "manual_id"
)

var errMissingStore = errors.New("store is required")

// RepositoryConfig describes the dependencies of the manual repository.
type RepositoryConfig struct {
	Store     storage.Store
	Publisher events.Publisher
	Seeds     []Manual
	Logger    *zap.Logger
}

// Repository merges immutable seed manuals with the user-created partition.
type Repository struct {
	mu        sync.Mutex
	store     storage.Store
	publisher events.Publisher
	seeds     []Manual
	logger    *zap.Logger
}

// NewRepository constructs a repository. Seeds are copied; nil seeds means none.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opRepositoryNew, "missing_store", errMissingStore)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	seeds := make([]Manual, 0, len(cfg.Seeds))
	seedIDs := make(map[string]struct{}, len(cfg.Seeds))
	for _, seed := range cfg.Seeds {
		if _, duplicate := seedIDs[seed.ID]; duplicate {
			continue
		}
		seedIDs[seed.ID] = struct{}{}
		seeds = append(seeds, seed.Clone())
	}
	return &Repository{
		store:     cfg.Store,
		publisher: publisher,
		seeds:     seeds,
		logger:    logger,
	}, nil
}

// GetAll returns user-created manuals in stored order followed by every seed
// manual that no user record shadows.
func (r *Repository) GetAll(ctx context.Context) []Manual {
	overrides := r.loadOverrides(ctx)
	seen := make(map[string]struct{}, len(overrides)+len(r.seeds))
	result := make([]Manual, 0, len(overrides)+len(r.seeds))
	for _, manual := range overrides {
		if _, duplicate := seen[manual.ID]; duplicate {
			continue
		}
		seen[manual.ID] = struct{}{}
		result = append(result, readModel(manual))
	}
	for _, seed := range r.seeds {
		if _, shadowed := seen[seed.ID]; shadowed {
			continue
		}
		seen[seed.ID] = struct{}{}
		result = append(result, readModel(seed))
	}
	return result
}

// GetByID looks a manual up in the merged view.
func (r *Repository) GetByID(ctx context.Context, id string) (Manual, bool) {
	for _, manual := range r.loadOverrides(ctx) {
		if manual.ID == id {
			return readModel(manual), true
		}
	}
	for _, seed := range r.seeds {
		if seed.ID == id {
			return readModel(seed), true
		}
	}
	return Manual{}, false
}

// Upsert inserts or replaces the manual in the user-created partition.
func (r *Repository) Upsert(ctx context.Context, manual Manual) error {
	id, err := ValidateManualID(manual.ID)
	if err != nil {
		return serviceerr.New(opUpsert, "invalid_manual_id", err)
	}
	manual.ID = id
	manual, _ = SanitizeMedia(manual)

	r.mu.Lock()
	overrides := r.loadOverrides(ctx)
	replaced := false
	for index := range overrides {
		if overrides[index].ID == id {
			overrides[index] = manual
			replaced = true
			break
		}
	}
	if !replaced {
		overrides = append(overrides, manual)
	}
	err = storage.SaveJSON(ctx, r.store, storage.KeyManuals, overrides)
	r.mu.Unlock()
	if err != nil {
		serviceerr.Log(r.logger, opUpsert, "store_write_failed", err, zap.String(fieldManualID, id))
		return serviceerr.New(opUpsert, "store_write_failed", err)
	}

	r.publisher.Publish(events.Event{Kind: events.KindManuals, IDs: []string{id}})
	return nil
}

// Delete removes the user-created record for id. Seed manuals cannot be removed;
// deleting an override makes the seed visible again.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	overrides := r.loadOverrides(ctx)
	kept := overrides[:0]
	removed := false
	for _, manual := range overrides {
		if manual.ID == id {
			removed = true
			continue
		}
		kept = append(kept, manual)
	}
	if !removed {
		r.mu.Unlock()
		return false, nil
	}
	err := storage.SaveJSON(ctx, r.store, storage.KeyManuals, kept)
	r.mu.Unlock()
	if err != nil {
		serviceerr.Log(r.logger, opDelete, "store_write_failed", err, zap.String(fieldManualID, id))
		return false, serviceerr.New(opDelete, "store_write_failed", err)
	}

	r.publisher.Publish(events.Event{Kind: events.KindManuals, IDs: []string{id}})
	return true, nil
}

func (r *Repository) loadOverrides(ctx context.Context) []Manual {
	overrides := storage.LoadJSON[[]Manual](ctx, r.store, storage.KeyManuals, r.logger)
	if overrides == nil {
		return []Manual{}
	}
	return overrides
}

func readModel(manual Manual) Manual {
	sanitized, _ := SanitizeMedia(manual)
	return sanitized
}
