package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/ids"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/notifications"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

// Status is the review state of a creator request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const (
	opWorkflowNew    = "requests.workflow.new"
	opSubmit         = "requests.submit"
	opApprove        = "requests.approve"
	opReject         = "requests.reject"
	defaultAdminLink = "/admin"
	fieldRequestID   = "request_id"
	fieldUserID      = "user_id"
)

var (
	errMissingStore      = errors.New("store is required")
	errMissingDirectory  = errors.New("user directory is required")
	errMissingNotifier   = errors.New("notifier is required")
	errMissingIDProvider = errors.New("id provider is required")

	// ErrActiveRequestExists indicates the user already has a request awaiting review.
	ErrActiveRequestExists = errors.New("requests: a pending request already exists")
	// ErrAlreadyCreator indicates the user can already author manuals.
	ErrAlreadyCreator = errors.New("requests: user already holds creator rights")
	// ErrMissingReason indicates a request without a motivation.
	ErrMissingReason = errors.New("requests: reason is required")
	// ErrRequestNotFound indicates no request exists with the given id.
	ErrRequestNotFound = errors.New("requests: request not found")
	// ErrRequestNotPending indicates the request was already reviewed.
	ErrRequestNotPending = errors.New("requests: request is not pending")
	// ErrTransitionNotAllowed indicates the actor may not perform the operation.
	ErrTransitionNotAllowed = errors.New("requests: transition not allowed")
)

// CreatorRequest is a user's application for the creator role.
type CreatorRequest struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Username   string     `json:"username"`
	Team       string     `json:"team,omitempty"`
	Reason     string     `json:"reason"`
	Types      []string   `json:"types,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	ReviewerID string     `json:"reviewerId,omitempty"`
	Note       string     `json:"note,omitempty"`
}

// RequestInput is the form a user submits.
type RequestInput struct {
	Team   string
	Reason string
	Types  []string
}

// Directory applies the role change of an approval.
type Directory interface {
	SetRole(ctx context.Context, id string, role users.Role) (users.User, error)
}

// Notifier delivers review outcomes.
type Notifier interface {
	Notify(ctx context.Context, userID, message string, notificationType notifications.Type, link string) (notifications.Notification, error)
	NotifyRole(ctx context.Context, role users.Role, message string, notificationType notifications.Type, link string) (int, error)
}

// SessionRefresher updates the live identity after a role change.
type SessionRefresher interface {
	Refresh(ctx context.Context, user users.User) (bool, error)
}

// WorkflowConfig describes the dependencies of the workflow.
type WorkflowConfig struct {
	Store      storage.Store
	Publisher  events.Publisher
	Directory  Directory
	Notifier   Notifier
	Sessions   SessionRefresher
	IDProvider ids.Provider
	Clock      func() time.Time
	AdminLink  string
	Logger     *zap.Logger
}

// Workflow moves creator requests from pending to approved or rejected.
type Workflow struct {
	mu         sync.Mutex
	store      storage.Store
	publisher  events.Publisher
	directory  Directory
	notifier   Notifier
	sessions   SessionRefresher
	idProvider ids.Provider
	clock      func() time.Time
	adminLink  string
	logger     *zap.Logger
}

// NewWorkflow constructs a creator request workflow.
func NewWorkflow(cfg WorkflowConfig) (*Workflow, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opWorkflowNew, "missing_store", errMissingStore)
	}
	if cfg.Directory == nil {
		return nil, serviceerr.New(opWorkflowNew, "missing_directory", errMissingDirectory)
	}
	if cfg.Notifier == nil {
		return nil, serviceerr.New(opWorkflowNew, "missing_notifier", errMissingNotifier)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opWorkflowNew, "missing_id_provider", errMissingIDProvider)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
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
	return &Workflow{
		store:      cfg.Store,
		publisher:  publisher,
		directory:  cfg.Directory,
		notifier:   cfg.Notifier,
		sessions:   cfg.Sessions,
		idProvider: cfg.IDProvider,
		clock:      clock,
		adminLink:  adminLink,
		logger:     logger,
	}, nil
}

// Submit files a creator request for user. A user holds at most one pending request.
func (w *Workflow) Submit(ctx context.Context, user users.User, input RequestInput) (CreatorRequest, error) {
	if !user.Authenticated() {
		return CreatorRequest{}, serviceerr.New(opSubmit, "anonymous", ErrTransitionNotAllowed)
	}
	if user.IsCreator() || user.IsAdmin() {
		return CreatorRequest{}, serviceerr.New(opSubmit, "already_creator", ErrAlreadyCreator)
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return CreatorRequest{}, serviceerr.New(opSubmit, "missing_reason", ErrMissingReason)
	}
	requestID, err := w.idProvider.NewID()
	if err != nil {
		serviceerr.Log(w.logger, opSubmit, "id_generation_failed", err, zap.String(fieldUserID, user.ID))
		return CreatorRequest{}, serviceerr.New(opSubmit, "id_generation_failed", err)
	}
	team := strings.TrimSpace(input.Team)
	if team == "" {
		team = user.Team
	}
	request := CreatorRequest{
		ID:        requestID,
		UserID:    user.ID,
		Username:  user.DisplayName(),
		Team:      team,
		Reason:    reason,
		Types:     trimmedValues(input.Types),
		Status:    StatusPending,
		CreatedAt: w.clock().UTC(),
	}

	w.mu.Lock()
	stored := w.load(ctx)
	for _, existing := range stored {
		if existing.UserID == user.ID && existing.Status == StatusPending {
			w.mu.Unlock()
			return CreatorRequest{}, serviceerr.New(opSubmit, "active_request_exists", ErrActiveRequestExists)
		}
	}
	err = storage.SaveJSON(ctx, w.store, storage.KeyCreatorRequests, append(stored, request))
	w.mu.Unlock()
	if err != nil {
		serviceerr.Log(w.logger, opSubmit, "store_write_failed", err, zap.String(fieldUserID, user.ID))
		return CreatorRequest{}, serviceerr.New(opSubmit, "store_write_failed", err)
	}
	w.publisher.Publish(events.Event{Kind: events.KindRequests, IDs: []string{request.ID}, UserID: user.ID})

	message := fmt.Sprintf("%s requested creator access", request.Username)
	if _, err := w.notifier.NotifyRole(ctx, users.RoleAdmin, message, notifications.TypeInfo, w.adminLink); err != nil {
		w.logger.Warn("reviewer notification failed", zap.String(fieldRequestID, request.ID), zap.Error(err))
	}
	return request, nil
}

// Approve grants the creator role to the requester, notifies them and refreshes
// their live session when they are the active identity.
func (w *Workflow) Approve(ctx context.Context, reviewer users.User, requestID, note string) (CreatorRequest, error) {
	request, err := w.pendingForReview(ctx, opApprove, reviewer, requestID)
	if err != nil {
		return CreatorRequest{}, err
	}
	reviewed, err := w.review(ctx, opApprove, request.ID, StatusApproved, reviewer, note)
	if err != nil {
		return CreatorRequest{}, err
	}
	promoted, err := w.directory.SetRole(ctx, request.UserID, users.RoleCreator)
	if err != nil {
		serviceerr.Log(w.logger, opApprove, "role_update_failed", err, zap.String(fieldRequestID, request.ID))
		if _, reopenErr := w.reopen(ctx, request.ID); reopenErr != nil {
			w.logger.Error("approved request left without role", zap.String(fieldRequestID, request.ID), zap.Error(reopenErr))
		}
		return CreatorRequest{}, serviceerr.New(opApprove, "role_update_failed", err)
	}

	message := "Your creator request was approved. You can now create manuals."
	if _, err := w.notifier.Notify(ctx, request.UserID, message, notifications.TypeSuccess, ""); err != nil {
		w.logger.Warn("requester notification failed", zap.String(fieldRequestID, request.ID), zap.Error(err))
	}
	if w.sessions != nil {
		if _, err := w.sessions.Refresh(ctx, promoted); err != nil {
			w.logger.Warn("session refresh failed", zap.String(fieldUserID, promoted.ID), zap.Error(err))
		}
	}
	return reviewed, nil
}

// Reject closes the request without changing the requester's role.
func (w *Workflow) Reject(ctx context.Context, reviewer users.User, requestID, note string) (CreatorRequest, error) {
	request, err := w.pendingForReview(ctx, opReject, reviewer, requestID)
	if err != nil {
		return CreatorRequest{}, err
	}
	reviewed, err := w.review(ctx, opReject, request.ID, StatusRejected, reviewer, note)
	if err != nil {
		return CreatorRequest{}, err
	}
	message := "Your creator request was rejected"
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		message = fmt.Sprintf("%s: %s", message, trimmed)
	}
	if _, err := w.notifier.Notify(ctx, request.UserID, message, notifications.TypeWarning, ""); err != nil {
		w.logger.Warn("requester notification failed", zap.String(fieldRequestID, request.ID), zap.Error(err))
	}
	return reviewed, nil
}

// List returns requests in submission order, narrowed to status when given.
func (w *Workflow) List(ctx context.Context, status Status) []CreatorRequest {
	stored := w.load(ctx)
	if status == "" {
		return stored
	}
	filtered := make([]CreatorRequest, 0, len(stored))
	for _, request := range stored {
		if request.Status == status {
			filtered = append(filtered, request)
		}
	}
	return filtered
}

// LatestForUser returns the most recent request of userID.
func (w *Workflow) LatestForUser(ctx context.Context, userID string) (CreatorRequest, bool) {
	stored := w.load(ctx)
	for index := len(stored) - 1; index >= 0; index-- {
		if stored[index].UserID == userID {
			return stored[index], true
		}
	}
	return CreatorRequest{}, false
}

func (w *Workflow) pendingForReview(ctx context.Context, operation string, reviewer users.User, requestID string) (CreatorRequest, error) {
	if !reviewer.Can(users.PermissionApprove) {
		return CreatorRequest{}, serviceerr.New(operation, "transition_not_allowed", ErrTransitionNotAllowed)
	}
	request, ok := w.find(ctx, strings.TrimSpace(requestID))
	if !ok {
		return CreatorRequest{}, serviceerr.New(operation, "request_not_found", ErrRequestNotFound)
	}
	if request.Status != StatusPending {
		return CreatorRequest{}, serviceerr.New(operation, "request_not_pending", ErrRequestNotPending)
	}
	return request, nil
}

func (w *Workflow) review(ctx context.Context, operation, requestID string, status Status, reviewer users.User, note string) (CreatorRequest, error) {
	reviewedAt := w.clock().UTC()
	return w.transition(ctx, operation, requestID, StatusPending, func(request *CreatorRequest) {
		request.Status = status
		request.ReviewedAt = &reviewedAt
		request.ReviewerID = reviewer.ID
		request.Note = strings.TrimSpace(note)
	})
}

// reopen returns an approved request to pending when the promotion it
// recorded could not be applied.
func (w *Workflow) reopen(ctx context.Context, requestID string) (CreatorRequest, error) {
	return w.transition(ctx, opApprove, requestID, StatusApproved, func(request *CreatorRequest) {
		request.Status = StatusPending
		request.ReviewedAt = nil
		request.ReviewerID = ""
		request.Note = ""
	})
}

// transition applies change to the stored request when it is still in from.
func (w *Workflow) transition(ctx context.Context, operation, requestID string, from Status, change func(*CreatorRequest)) (CreatorRequest, error) {
	w.mu.Lock()
	stored := w.load(ctx)
	index := -1
	for position := range stored {
		if stored[position].ID == requestID {
			index = position
			break
		}
	}
	if index < 0 {
		w.mu.Unlock()
		return CreatorRequest{}, serviceerr.New(operation, "request_not_found", ErrRequestNotFound)
	}
	if stored[index].Status != from {
		w.mu.Unlock()
		return CreatorRequest{}, serviceerr.New(operation, "request_not_pending", ErrRequestNotPending)
	}
	change(&stored[index])
	updated := stored[index]
	err := storage.SaveJSON(ctx, w.store, storage.KeyCreatorRequests, stored)
	w.mu.Unlock()
	if err != nil {
		serviceerr.Log(w.logger, operation, "store_write_failed", err, zap.String(fieldRequestID, requestID))
		return CreatorRequest{}, serviceerr.New(operation, "store_write_failed", err)
	}
	w.publisher.Publish(events.Event{Kind: events.KindRequests, IDs: []string{requestID}, UserID: updated.UserID})
	return updated, nil
}

func (w *Workflow) find(ctx context.Context, requestID string) (CreatorRequest, bool) {
	for _, request := range w.load(ctx) {
		if request.ID == requestID {
			return request, true
		}
	}
	return CreatorRequest{}, false
}

func (w *Workflow) load(ctx context.Context) []CreatorRequest {
	return storage.LoadJSON[[]CreatorRequest](ctx, w.store, storage.KeyCreatorRequests, w.logger)
}

func trimmedValues(values []string) []string {
	trimmed := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			trimmed = append(trimmed, value)
		}
	}
	return trimmed
}
