package portal

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/interactions"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/lifecycle"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/search"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"go.uber.org/zap"
)

const (
	opOpenManual     = "portal.open_manual"
	opDownload       = "portal.download"
	opToggleLike     = "portal.toggle_like"
	opToggleBookmark = "portal.toggle_bookmark"
)

// SearchResult pairs the filtered listing with the ranked suggestions.
type SearchResult struct {
	Query       string
	Listing     []interactions.EnhancedManual
	Suggestions search.Ranking
}

// Browse lists the manuals viewer may read that satisfy criteria.
func (p *Portal) Browse(ctx context.Context, viewer users.User, criteria search.Criteria) []interactions.EnhancedManual {
	visible := lifecycle.VisibleTo(viewer, p.Manuals.GetAll(ctx))
	return p.Ledger.EnhanceAll(ctx, search.Filter(visible, criteria), viewer.ID)
}

// Search runs the keyword filter for the listing and the ranking for the
// suggestion panel over the manuals viewer may read, then logs the query with
// the listing size.
func (p *Portal) Search(ctx context.Context, viewer users.User, query string, criteria search.Criteria) (SearchResult, error) {
	criteria.Keyword = query
	visible := lifecycle.VisibleTo(viewer, p.Manuals.GetAll(ctx))
	listing := search.Filter(visible, criteria)
	result := SearchResult{
		Query:       strings.TrimSpace(query),
		Listing:     p.Ledger.EnhanceAll(ctx, listing, viewer.ID),
		Suggestions: search.Rank(query, visible),
	}
	if _, err := p.Analytics.LogSearch(ctx, query, len(listing), viewer); err != nil {
		return result, err
	}
	return result, nil
}

// OpenManual returns the read model of id and counts the view.
func (p *Portal) OpenManual(ctx context.Context, viewer users.User, id string) (interactions.EnhancedManual, error) {
	manual, err := p.readable(ctx, opOpenManual, viewer, id)
	if err != nil {
		return interactions.EnhancedManual{}, err
	}
	if _, err := p.Ledger.RecordView(ctx, manual.ID, viewer.ID); err != nil {
		p.logger.Warn("view not recorded", zap.String("manual_id", manual.ID), zap.Error(err))
	}
	return p.Ledger.GetEnhanced(ctx, manual, viewer.ID), nil
}

// Download counts a download of id and returns the manual with its attachment.
func (p *Portal) Download(ctx context.Context, viewer users.User, id string) (manuals.Manual, error) {
	manual, err := p.readable(ctx, opDownload, viewer, id)
	if err != nil {
		return manuals.Manual{}, err
	}
	if _, err := p.Ledger.IncrementDownloads(ctx, manual.ID); err != nil {
		return manuals.Manual{}, err
	}
	if viewer.Authenticated() {
		if err := p.Directory.RecordStat(ctx, viewer.ID, users.StatDownloads, 1); err != nil {
			p.logger.Warn("download stat not recorded", zap.String("user_id", viewer.ID), zap.Error(err))
		}
	}
	return manual, nil
}

// ToggleLike flips the viewer's like on id.
func (p *Portal) ToggleLike(ctx context.Context, viewer users.User, id string) (bool, int, error) {
	manual, err := p.readable(ctx, opToggleLike, viewer, id)
	if err != nil {
		return false, 0, err
	}
	return p.Ledger.ToggleLike(ctx, manual.ID, viewer.ID)
}

// ToggleBookmark flips the viewer's bookmark on id, snapshotting the title.
func (p *Portal) ToggleBookmark(ctx context.Context, viewer users.User, id string) (bool, error) {
	if !viewer.Can(users.PermissionBookmark) {
		return false, serviceerr.New(opToggleBookmark, "transition_not_allowed", lifecycle.ErrTransitionNotAllowed)
	}
	manual, err := p.readable(ctx, opToggleBookmark, viewer, id)
	if err != nil {
		return false, err
	}
	return p.Bookmarks.Toggle(ctx, viewer.ID, manual.ID, manual.Title)
}

func (p *Portal) readable(ctx context.Context, operation string, viewer users.User, id string) (manuals.Manual, error) {
	manual, ok := p.Manuals.GetByID(ctx, strings.TrimSpace(id))
	if !ok {
		return manuals.Manual{}, serviceerr.New(operation, "manual_not_found", lifecycle.ErrManualNotFound)
	}
	if !lifecycle.CanView(viewer, manual) {
		return manuals.Manual{}, serviceerr.New(operation, "transition_not_allowed", lifecycle.ErrTransitionNotAllowed)
	}
	return manual, nil
}
