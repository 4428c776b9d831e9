package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/ids"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/notifications"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

// Intent is what the author asked for when saving.
type Intent string

const (
	IntentDraft   Intent = "draft"
	IntentSubmit  Intent = "submit"
	IntentPublish Intent = "publish"
)

const (
	opEngineNew        = "lifecycle.engine.new"
	opSave             = "lifecycle.save"
	opApprove          = "lifecycle.approve"
	opReject           = "lifecycle.reject"
	opDeleteDraft      = "lifecycle.delete_draft"
	defaultAdminLink   = "/admin"
	fieldManualID      = "manual_id"
	fieldActorID       = "actor_id"
	reasonNotAllowed   = "transition_not_allowed"
	reasonNotFound     = "manual_not_found"
	reasonInvalidInput = "invalid_input"
)

var (
	errMissingRepository = errors.New("manual repository is required")
	errMissingNotifier   = errors.New("notifier is required")
	errMissingIDProvider = errors.New("id provider is required")

	// ErrTransitionNotAllowed indicates the actor's role or the manual's state forbids the transition.
	ErrTransitionNotAllowed = errors.New("lifecycle: transition not allowed")
	// ErrManualNotFound indicates no manual exists with the given id.
	ErrManualNotFound = errors.New("lifecycle: manual not found")
	// ErrMissingTitle indicates a save without a title.
	ErrMissingTitle = errors.New("lifecycle: title is required")
	// ErrInvalidIntent indicates an intent outside draft/submit/publish.
	ErrInvalidIntent = errors.New("lifecycle: invalid intent")
)

// ManualRepository is the manual persistence the engine drives.
type ManualRepository interface {
	GetByID(ctx context.Context, id string) (manuals.Manual, bool)
	Upsert(ctx context.Context, manual manuals.Manual) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Notifier delivers the side effects of transitions.
type Notifier interface {
	Notify(ctx context.Context, userID, message string, notificationType notifications.Type, link string) (notifications.Notification, error)
	NotifyRole(ctx context.Context, role users.Role, message string, notificationType notifications.Type, link string) (int, error)
	NotifyBookmarkHolders(ctx context.Context, manualID, title, newVersion string) (int, error)
}

// Directory resolves authors and receives authoring stats.
type Directory interface {
	FindByName(ctx context.Context, name string) (users.User, bool)
	RecordStat(ctx context.Context, id string, kind users.StatKind, delta int) error
}

// EngineConfig describes the dependencies of the lifecycle engine.
type EngineConfig struct {
	Manuals    ManualRepository
	Notifier   Notifier
	Directory  Directory
	IDProvider ids.Provider
	Clock      func() time.Time
	AdminLink  string
	Logger     *zap.Logger
}

// Engine applies the draft, pending and published transitions of manuals.
type Engine struct {
	manuals    ManualRepository
	notifier   Notifier
	directory  Directory
	idProvider ids.Provider
	clock      func() time.Time
	adminLink  string
	logger     *zap.Logger
}

// NewEngine constructs a lifecycle engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Manuals == nil {
		return nil, serviceerr.New(opEngineNew, "missing_repository", errMissingRepository)
	}
	if cfg.Notifier == nil {
		return nil, serviceerr.New(opEngineNew, "missing_notifier", errMissingNotifier)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opEngineNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	adminLink := strings.TrimSpace(cfg.AdminLink)
	if adminLink == "" {
		adminLink = defaultAdminLink
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		manuals:    cfg.Manuals,
		notifier:   cfg.Notifier,
		directory:  cfg.Directory,
		idProvider: cfg.IDProvider,
		clock:      clock,
		adminLink:  adminLink,
		logger:     logger,
	}, nil
}

// ParseIntent validates raw input against the save intents.
func ParseIntent(rawInput string) (Intent, error) {
	switch Intent(strings.ToLower(strings.TrimSpace(rawInput))) {
	case IntentDraft:
		return IntentDraft, nil
	case IntentSubmit:
		return IntentSubmit, nil
	case IntentPublish:
		return IntentPublish, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidIntent, rawInput)
	}
}

// Save creates or edits a manual on behalf of actor and returns the stored record.
func (e *Engine) Save(ctx context.Context, actor users.User, input manuals.Manual, intent Intent) (manuals.Manual, error) {
	intent, err := ParseIntent(string(intent))
	if err != nil {
		return manuals.Manual{}, serviceerr.New(opSave, reasonInvalidInput, err)
	}
	draft, err := normalizeInput(input)
	if err != nil {
		return manuals.Manual{}, serviceerr.New(opSave, reasonInvalidInput, err)
	}

	now := e.clock().UTC()
	existing, found := manuals.Manual{}, false
	if draft.ID != "" {
		existing, found = e.manuals.GetByID(ctx, draft.ID)
	}

	var previousStatus manuals.Status
	versionChanged := false
	if found {
		if !CanEdit(actor, existing) {
			return manuals.Manual{}, e.denied(opSave, actor, draft.ID)
		}
		previousStatus = existing.Status
		draft.Author = existing.Author
		draft.AuthorID = existing.AuthorID
		draft.CreatedAt = existing.CreatedAt
		draft.Status = nextStatus(actor, existing.Status, true, intent)
		previousVersion := manuals.NormalizeVersion(existing.Version)
		if strings.TrimSpace(input.Version) == "" {
			draft.Version = previousVersion
		}
		draft.Versions = manuals.NormalizeHistory(existing.Versions)
		if draft.Version != previousVersion {
			draft.Versions = manuals.AppendVersion(draft.Versions, previousVersion)
			draft.Versions = manuals.AppendVersion(draft.Versions, draft.Version)
			versionChanged = true
		} else if len(draft.Versions) == 0 {
			draft.Versions = []string{draft.Version}
		}
	} else {
		if !CanCreate(actor) {
			return manuals.Manual{}, e.denied(opSave, actor, draft.ID)
		}
		if draft.ID == "" {
			generated, err := e.idProvider.NewID()
			if err != nil {
				serviceerr.Log(e.logger, opSave, "id_generation_failed", err, zap.String(fieldActorID, actor.ID))
				return manuals.Manual{}, serviceerr.New(opSave, "id_generation_failed", err)
			}
			draft.ID = generated
		}
		draft.Author = actor.DisplayName()
		draft.AuthorID = actor.ID
		draft.CreatedAt = now
		draft.Status = nextStatus(actor, "", false, intent)
		draft.Versions = []string{draft.Version}
	}
	draft.UpdatedAt = now
	draft.UpdatedBy = actor.DisplayName()

	if err := e.manuals.Upsert(ctx, draft); err != nil {
		return manuals.Manual{}, err
	}
	stored, ok := e.manuals.GetByID(ctx, draft.ID)
	if !ok {
		stored = draft
	}

	if !found {
		e.recordCreated(ctx, actor)
	}
	if actor.IsCreator() && stored.Status == manuals.StatusPending && previousStatus != manuals.StatusPending {
		e.notifyReviewers(ctx, stored)
	}
	if versionChanged {
		if _, err := e.notifier.NotifyBookmarkHolders(ctx, stored.ID, stored.Title, stored.Version); err != nil {
			e.logger.Warn("bookmark notification failed", zap.String(fieldManualID, stored.ID), zap.Error(err))
		}
	}
	return stored, nil
}

// Approve publishes a pending manual and tells its author.
func (e *Engine) Approve(ctx context.Context, actor users.User, id string) (manuals.Manual, error) {
	manual, err := e.pendingForReview(ctx, opApprove, actor, id)
	if err != nil {
		return manuals.Manual{}, err
	}
	manual.Status = manuals.StatusPublished
	manual.UpdatedAt = e.clock().UTC()
	manual.UpdatedBy = actor.DisplayName()
	if err := e.manuals.Upsert(ctx, manual); err != nil {
		return manuals.Manual{}, err
	}
	e.notifyAuthor(ctx, manual, fmt.Sprintf("Your manual %q was approved and published", manual.Title), notifications.TypeSuccess, notifications.ManualLink(manual.ID))
	return manual, nil
}

// Reject deletes a pending manual and warns its author, quoting reason when given.
func (e *Engine) Reject(ctx context.Context, actor users.User, id, reason string) error {
	manual, err := e.pendingForReview(ctx, opReject, actor, id)
	if err != nil {
		return err
	}
	if _, err := e.manuals.Delete(ctx, manual.ID); err != nil {
		return err
	}
	message := fmt.Sprintf("Your manual %q was rejected", manual.Title)
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		message = fmt.Sprintf("%s: %s", message, trimmed)
	}
	e.notifyAuthor(ctx, manual, message, notifications.TypeWarning, "")
	return nil
}

// DeleteDraft discards a draft owned by actor, or any draft when actor is an admin.
func (e *Engine) DeleteDraft(ctx context.Context, actor users.User, id string) error {
	manual, found := e.manuals.GetByID(ctx, strings.TrimSpace(id))
	if !found {
		return serviceerr.New(opDeleteDraft, reasonNotFound, ErrManualNotFound)
	}
	if !CanDeleteDraft(actor, manual) {
		return e.denied(opDeleteDraft, actor, manual.ID)
	}
	if _, err := e.manuals.Delete(ctx, manual.ID); err != nil {
		return err
	}
	return nil
}

func (e *Engine) pendingForReview(ctx context.Context, operation string, actor users.User, id string) (manuals.Manual, error) {
	if !CanApprove(actor) {
		return manuals.Manual{}, e.denied(operation, actor, id)
	}
	manual, found := e.manuals.GetByID(ctx, strings.TrimSpace(id))
	if !found {
		return manuals.Manual{}, serviceerr.New(operation, reasonNotFound, ErrManualNotFound)
	}
	if manual.Status != manuals.StatusPending {
		return manuals.Manual{}, e.denied(operation, actor, manual.ID)
	}
	return manual, nil
}

func (e *Engine) denied(operation string, actor users.User, manualID string) error {
	e.logger.Info("lifecycle transition denied",
		zap.String("operation", operation),
		zap.String(fieldActorID, actor.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.String(fieldManualID, manualID),
	)
	return serviceerr.New(operation, reasonNotAllowed, ErrTransitionNotAllowed)
}

func (e *Engine) notifyReviewers(ctx context.Context, manual manuals.Manual) {
	message := fmt.Sprintf("%q by %s is awaiting review", manual.Title, manual.Author)
	if _, err := e.notifier.NotifyRole(ctx, users.RoleAdmin, message, notifications.TypeInfo, e.adminLink); err != nil {
		e.logger.Warn("reviewer notification failed", zap.String(fieldManualID, manual.ID), zap.Error(err))
	}
}

func (e *Engine) notifyAuthor(ctx context.Context, manual manuals.Manual, message string, notificationType notifications.Type, link string) {
	authorID, ok := e.resolveAuthor(ctx, manual)
	if !ok {
		e.logger.Warn("manual author unresolved, notification skipped",
			zap.String(fieldManualID, manual.ID),
			zap.String("author", manual.Author),
		)
		return
	}
	if _, err := e.notifier.Notify(ctx, authorID, message, notificationType, link); err != nil {
		e.logger.Warn("author notification failed", zap.String(fieldManualID, manual.ID), zap.Error(err))
	}
}

func (e *Engine) resolveAuthor(ctx context.Context, manual manuals.Manual) (string, bool) {
	if authorID := strings.TrimSpace(manual.AuthorID); authorID != "" {
		return authorID, true
	}
	if e.directory == nil {
		return "", false
	}
	author, ok := e.directory.FindByName(ctx, manual.Author)
	if !ok {
		return "", false
	}
	return author.ID, true
}

func (e *Engine) recordCreated(ctx context.Context, actor users.User) {
	if e.directory == nil {
		return
	}
	if err := e.directory.RecordStat(ctx, actor.ID, users.StatCreated, 1); err != nil {
		e.logger.Warn("created stat update failed", zap.String(fieldActorID, actor.ID), zap.Error(err))
	}
}

// nextStatus is the status a save lands in. Admin drafts keep the current
// status of existing manuals; creators editing published work go back to review.
func nextStatus(actor users.User, current manuals.Status, exists bool, intent Intent) manuals.Status {
	if actor.IsAdmin() {
		if intent == IntentDraft {
			if exists {
				return current
			}
			return manuals.StatusDraft
		}
		return manuals.StatusPublished
	}
	if exists && current != manuals.StatusDraft {
		return manuals.StatusPending
	}
	if intent == IntentDraft {
		return manuals.StatusDraft
	}
	return manuals.StatusPending
}

func normalizeInput(input manuals.Manual) (manuals.Manual, error) {
	draft := input.Clone()
	draft.ID = strings.TrimSpace(draft.ID)
	if draft.ID != "" {
		validated, err := manuals.ValidateManualID(draft.ID)
		if err != nil {
			return manuals.Manual{}, err
		}
		draft.ID = validated
	}
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return manuals.Manual{}, ErrMissingTitle
	}
	draft.Description = strings.TrimSpace(draft.Description)
	category, err := manuals.ParseCategory(string(draft.Category))
	if err != nil {
		return manuals.Manual{}, err
	}
	draft.Category = category
	for _, block := range draft.Blocks {
		if err := block.Validate(); err != nil {
			return manuals.Manual{}, err
		}
	}
	draft.Tags = manuals.NormalizeTags(draft.Tags)
	draft.Version = manuals.NormalizeVersion(draft.Version)
	return draft, nil
}
