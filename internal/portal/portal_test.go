package portal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/auth"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/config"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/jobs"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/lifecycle"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/notifications"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/search"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("id-%d", s.next), nil
}

func newTestPortal(t *testing.T) *Portal {
	t.Helper()
	current := time.Date(2026, 10, 5, 10, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		current = current.Add(time.Second)
		return current
	}
	tokens, err := auth.NewSessionTokens(auth.SessionTokenConfig{
		SigningSecret: []byte("portal-test-secret"),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to create tokens: %v", err)
	}
	assembled, err := New(context.Background(), Config{
		Store:      storage.NewMemoryStore(),
		Tokens:     tokens,
		IDProvider: &sequenceIDs{},
		Clock:      clock,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to assemble portal: %v", err)
	}
	return assembled
}

func mustUser(t *testing.T, p *Portal, id string) users.User {
	t.Helper()
	user, ok := p.Directory.FindByID(context.Background(), id)
	if !ok {
		t.Fatalf("user %s not seeded", id)
	}
	return user
}

func TestNewRequiresStoreAndTokens(t *testing.T) {
	if _, err := New(context.Background(), Config{}); !errors.Is(err, errMissingStore) {
		t.Fatalf("expected errMissingStore, got %v", err)
	}
	if _, err := New(context.Background(), Config{Store: storage.NewMemoryStore()}); !errors.Is(err, errMissingTokens) {
		t.Fatalf("expected errMissingTokens, got %v", err)
	}
}

func TestManualJourneyFromSubmissionToBookmarkNotice(t *testing.T) {
	ctx := context.Background()
	p := newTestPortal(t)
	admin := mustUser(t, p, "u-admin")
	creator := mustUser(t, p, "u-creator")
	reader := mustUser(t, p, "u-reader")

	changes := 0
	p.Bus.Subscribe(events.KindManuals, func(events.Event) { changes++ })

	submitted, err := p.Lifecycle.Save(ctx, creator, manuals.Manual{Title: "Release checklist", Category: "operations", Version: "1.0"}, lifecycle.IntentSubmit)
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if submitted.Status != manuals.StatusPending {
		t.Fatalf("expected pending, got %s", submitted.Status)
	}
	if count := p.Notifications.UnreadCount(ctx, admin.ID); count != 1 {
		t.Fatalf("expected one review notice, got %d", count)
	}
	for _, item := range p.Browse(ctx, reader, search.Criteria{}) {
		if item.ID == submitted.ID {
			t.Fatalf("pending manual leaked to reader")
		}
	}
	if _, err := p.OpenManual(ctx, reader, submitted.ID); !errors.Is(err, lifecycle.ErrTransitionNotAllowed) {
		t.Fatalf("expected reader to be refused, got %v", err)
	}

	if _, err := p.Lifecycle.Approve(ctx, admin, submitted.ID); err != nil {
		t.Fatalf("unexpected approve error: %v", err)
	}
	for range 2 {
		opened, err := p.OpenManual(ctx, reader, submitted.ID)
		if err != nil {
			t.Fatalf("unexpected open error: %v", err)
		}
		if opened.Views != 1 {
			t.Fatalf("expected repeat views to count once, got %d", opened.Views)
		}
	}
	if bookmarked, err := p.ToggleBookmark(ctx, reader, submitted.ID); err != nil || !bookmarked {
		t.Fatalf("expected bookmark, bookmarked=%v err=%v", bookmarked, err)
	}
	if liked, likes, err := p.ToggleLike(ctx, reader, submitted.ID); err != nil || !liked || likes != 1 {
		t.Fatalf("expected like, liked=%v likes=%d err=%v", liked, likes, err)
	}
	if _, err := p.Download(ctx, reader, submitted.ID); err != nil {
		t.Fatalf("unexpected download error: %v", err)
	}

	current, _ := p.Manuals.GetByID(ctx, submitted.ID)
	current.Version = "v1.1"
	updated, err := p.Lifecycle.Save(ctx, admin, current, lifecycle.IntentPublish)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Status != manuals.StatusPublished || updated.Version != "1.1" {
		t.Fatalf("unexpected updated manual %#v", updated)
	}

	var notice notifications.Notification
	for _, candidate := range p.Notifications.ListForUser(ctx, reader.ID) {
		if strings.Contains(candidate.Message, "v1.1") {
			notice = candidate
		}
	}
	if notice.ID == "" || notice.Link != "/manuals/"+submitted.ID {
		t.Fatalf("expected bookmark holder notice, got %#v", p.Notifications.ListForUser(ctx, reader.ID))
	}

	enhanced, err := p.OpenManual(ctx, reader, submitted.ID)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if !enhanced.HasLiked || !enhanced.IsBookmarked || enhanced.Downloads != 1 {
		t.Fatalf("unexpected read model %#v", enhanced)
	}
	refreshed := mustUser(t, p, reader.ID)
	if refreshed.Stats.Views != 1 || refreshed.Stats.Likes != 1 || refreshed.Stats.Bookmarks != 1 || refreshed.Stats.Downloads != 1 {
		t.Fatalf("unexpected reader stats %#v", refreshed.Stats)
	}
	if changes < 3 {
		t.Fatalf("expected manual change events, got %d", changes)
	}
}

func TestReadSideErrorsCarryTheirOperation(t *testing.T) {
	ctx := context.Background()
	p := newTestPortal(t)
	reader := mustUser(t, p, "u-reader")

	testCases := []struct {
		name       string
		call       func() error
		expectCode string
	}{
		{
			name:       "open",
			call:       func() error { _, err := p.OpenManual(ctx, reader, "missing"); return err },
			expectCode: "portal.open_manual.manual_not_found",
		},
		{
			name:       "download",
			call:       func() error { _, err := p.Download(ctx, reader, "missing"); return err },
			expectCode: "portal.download.manual_not_found",
		},
		{
			name:       "like",
			call:       func() error { _, _, err := p.ToggleLike(ctx, reader, "missing"); return err },
			expectCode: "portal.toggle_like.manual_not_found",
		},
		{
			name:       "bookmark",
			call:       func() error { _, err := p.ToggleBookmark(ctx, reader, "missing"); return err },
			expectCode: "portal.toggle_bookmark.manual_not_found",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := testCase.call()
			var coded *serviceerr.Error
			if !errors.As(err, &coded) || coded.Code() != testCase.expectCode {
				t.Fatalf("expected code %s, got %v", testCase.expectCode, err)
			}
			if !errors.Is(err, lifecycle.ErrManualNotFound) {
				t.Fatalf("expected ErrManualNotFound, got %v", err)
			}
		})
	}
}

func TestRejectedSubmissionIsRemovedAndAuthorWarned(t *testing.T) {
	ctx := context.Background()
	p := newTestPortal(t)
	admin := mustUser(t, p, "u-admin")
	creator := mustUser(t, p, "u-creator")

	submitted, err := p.Lifecycle.Save(ctx, creator, manuals.Manual{Title: "Coffee machine"}, lifecycle.IntentSubmit)
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if err := p.Lifecycle.Reject(ctx, admin, submitted.ID, "duplicate"); err != nil {
		t.Fatalf("unexpected reject error: %v", err)
	}
	if _, ok := p.Manuals.GetByID(ctx, submitted.ID); ok {
		t.Fatalf("rejected manual must be removed")
	}
	inbox := p.Notifications.ListForUser(ctx, creator.ID)
	if len(inbox) != 1 || inbox[0].Type != notifications.TypeWarning || !strings.Contains(inbox[0].Message, "duplicate") {
		t.Fatalf("expected rejection warning, got %#v", inbox)
	}
}

func TestSearchRanksSuggestionsAndLogsQueries(t *testing.T) {
	ctx := context.Background()
	p := newTestPortal(t)
	reader := mustUser(t, p, "u-reader")

	result, err := p.Search(ctx, reader, "  vs code ", search.Criteria{})
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(result.Listing) != 1 || result.Listing[0].ID != "1" {
		t.Fatalf("unexpected listing %#v", result.Listing)
	}
	if len(result.Suggestions.Manuals) != 2 || result.Suggestions.Manuals[0].ID != "1" || result.Suggestions.Manuals[1].ID != "5" {
		t.Fatalf("unexpected suggestions %#v", result.Suggestions.Manuals)
	}
	if result.Suggestions.Scores[0] != 3 || result.Suggestions.Scores[1] != 1 {
		t.Fatalf("unexpected scores %v", result.Suggestions.Scores)
	}

	if _, err := p.Search(ctx, reader, "   ", search.Criteria{}); err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if _, err := p.Search(ctx, users.User{}, "kubernetes", search.Criteria{}); err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}

	entries := p.Analytics.Entries(ctx, 0)
	if len(entries) != 2 {
		t.Fatalf("expected blank query to be skipped, got %#v", entries)
	}
	if entries[0].Query != "vs code" || entries[0].UserID != reader.ID || entries[0].ResultsCount != 1 {
		t.Fatalf("unexpected first entry %#v", entries[0])
	}
	if entries[1].UserID != "" || entries[1].ResultsCount != 0 {
		t.Fatalf("unexpected anonymous entry %#v", entries[1])
	}
	summary := p.Analytics.Summary(ctx, 0)
	if summary.TotalSearches != 2 || summary.ZeroResults != 1 {
		t.Fatalf("unexpected summary %#v", summary)
	}
}

func TestRetentionJobIsRegistered(t *testing.T) {
	p := newTestPortal(t)
	ran, err := p.Jobs.RunOnce(context.Background(), jobs.SearchLogRetentionName)
	if err != nil || !ran {
		t.Fatalf("expected retention run, ran=%v err=%v", ran, err)
	}
}

func TestOpenBuildsSQLiteBackedPortal(t *testing.T) {
	ctx := context.Background()
	appConfig := config.AppConfig{
		DatabasePath:         filepath.Join(t.TempDir(), "quickhelp.db"),
		SessionSigningSecret: "sqlite-test-secret",
		SessionTTL:           time.Hour,
		SearchRetention:      30 * 24 * time.Hour,
		RetentionSchedule:    "@daily",
		ChangeFeedSchedule:   "@every 15s",
		AdminDashboardLink:   "/admin",
	}

	first, closeFirst, err := Open(ctx, appConfig, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open portal: %v", err)
	}
	defer closeFirst() //nolint:errcheck
	if names := first.Jobs.Names(); len(names) != 2 || names[1] != jobs.StoreChangeFeedName {
		t.Fatalf("expected retention and change feed jobs, got %v", names)
	}

	second, closeSecond, err := Open(ctx, appConfig, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open second portal: %v", err)
	}
	defer closeSecond() //nolint:errcheck
	if got := len(second.Directory.All(ctx)); got != len(users.SeedUsers()) {
		t.Fatalf("expected seeded directory once, got %d users", got)
	}

	announced := 0
	first.Bus.Subscribe(events.KindBookmarks, func(events.Event) { announced++ })
	reader := mustUser(t, second, "u-reader")
	if _, err := second.ToggleBookmark(ctx, reader, "2"); err != nil {
		t.Fatalf("unexpected bookmark error: %v", err)
	}
	if announced != 0 {
		t.Fatalf("foreign writes must wait for the change feed")
	}
	if ran, err := first.Jobs.RunOnce(ctx, jobs.StoreChangeFeedName); err != nil || !ran {
		t.Fatalf("expected change feed run, ran=%v err=%v", ran, err)
	}
	if announced != 1 {
		t.Fatalf("expected bookmark write announced once, got %d", announced)
	}
	if !first.Bookmarks.IsBookmarked(ctx, reader.ID, "2") {
		t.Fatalf("expected bookmark visible through the shared database")
	}
}

func TestMemoryPortalHasNoChangeFeed(t *testing.T) {
	p := newTestPortal(t)
	if names := p.Jobs.Names(); len(names) != 1 || names[0] != jobs.SearchLogRetentionName {
		t.Fatalf("unexpected jobs %v", names)
	}
}
