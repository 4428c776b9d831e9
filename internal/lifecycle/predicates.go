package lifecycle

import (
	"strings"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
)

// IsOwner reports whether user authored manual. The stored author id decides
// when present; older records fall back to the display name or username.
func IsOwner(user users.User, manual manuals.Manual) bool {
	if !user.Authenticated() {
		return false
	}
	if authorID := strings.TrimSpace(manual.AuthorID); authorID != "" {
		return authorID == user.ID
	}
	return user.MatchesName(manual.Author)
}

// CanCreate reports whether user may author new manuals.
func CanCreate(user users.User) bool {
	return user.Can(users.PermissionCreate)
}

// CanEdit reports whether user may change manual. Admins edit anything,
// creators only their own manuals.
func CanEdit(user users.User, manual manuals.Manual) bool {
	if user.IsAdmin() {
		return true
	}
	return user.IsCreator() && IsOwner(user, manual)
}

// CanApprove reports whether user moderates the review queue.
func CanApprove(user users.User) bool {
	return user.Can(users.PermissionApprove)
}

// CanDeleteDraft reports whether user may discard manual, which must be a draft.
func CanDeleteDraft(user users.User, manual manuals.Manual) bool {
	if manual.Status != manuals.StatusDraft {
		return false
	}
	return CanEdit(user, manual)
}

// CanView reports whether user may read manual. Published manuals are
// public; drafts and pending manuals are visible to admins and the owner.
func CanView(user users.User, manual manuals.Manual) bool {
	if manual.Status == manuals.StatusPublished {
		return true
	}
	return user.IsAdmin() || IsOwner(user, manual)
}

// VisibleTo keeps the manuals user may read, in input order.
func VisibleTo(user users.User, list []manuals.Manual) []manuals.Manual {
	visible := make([]manuals.Manual, 0, len(list))
	for _, manual := range list {
		if CanView(user, manual) {
			visible = append(visible, manual)
		}
	}
	return visible
}
