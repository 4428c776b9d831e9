package users

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the coarse authorization level of a user.
type Role string

const (
	RoleUser    Role = "user"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// Permission is a single capability derived from a role.
type Permission string

const (
	PermissionView          Permission = "view"
	PermissionLike          Permission = "like"
	PermissionBookmark      Permission = "bookmark"
	PermissionDownload      Permission = "download"
	PermissionCreate        Permission = "create"
	PermissionEditOwn       Permission = "edit_own"
	PermissionEditAny       Permission = "edit_any"
	PermissionApprove       Permission = "approve"
	PermissionReject        Permission = "reject"
	PermissionManageUsers   Permission = "manage_users"
	PermissionViewAnalytics Permission = "view_analytics"
)

// StatKind names one of the aggregated user counters.
type StatKind string

const (
	StatViews     StatKind = "views"
	StatDownloads StatKind = "downloads"
	StatBookmarks StatKind = "bookmarks"
	StatLikes     StatKind = "likes"
	StatCreated   StatKind = "created"
)

var (
	// ErrInvalidRole indicates a role outside user/creator/admin.
	ErrInvalidRole = errors.New("users: invalid role")
	// ErrInvalidUserID indicates an empty user identifier.
	ErrInvalidUserID = errors.New("users: invalid user id")
	// ErrUserNotFound indicates the directory holds no user with the given id.
	ErrUserNotFound = errors.New("users: user not found")
)

var (
	basePermissions    = []Permission{PermissionView, PermissionLike, PermissionBookmark, PermissionDownload}
	creatorPermissions = []Permission{PermissionCreate, PermissionEditOwn}
	adminPermissions   = []Permission{PermissionEditAny, PermissionApprove, PermissionReject, PermissionManageUsers, PermissionViewAnalytics}
)

// ParseRole validates raw input against the role enumeration.
func ParseRole(rawInput string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(rawInput))) {
	case RoleUser:
		return RoleUser, nil
	case RoleCreator:
		return RoleCreator, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, rawInput)
	}
}

// PermissionsFor derives the permission set of role. Unknown roles get the user set.
func PermissionsFor(role Role) []Permission {
	permissions := append([]Permission(nil), basePermissions...)
	switch role {
	case RoleCreator:
		permissions = append(permissions, creatorPermissions...)
	case RoleAdmin:
		permissions = append(permissions, creatorPermissions...)
		permissions = append(permissions, adminPermissions...)
	}
	return permissions
}

// Stats aggregates per-user activity counters.
type Stats struct {
	Views     int `json:"views"`
	Downloads int `json:"downloads"`
	Bookmarks int `json:"bookmarks"`
	Likes     int `json:"likes"`
	Created   int `json:"created"`
}

func (s *Stats) add(kind StatKind, delta int) {
	switch kind {
	case StatViews:
		s.Views = clampZero(s.Views + delta)
	case StatDownloads:
		s.Downloads = clampZero(s.Downloads + delta)
	case StatBookmarks:
		s.Bookmarks = clampZero(s.Bookmarks + delta)
	case StatLikes:
		s.Likes = clampZero(s.Likes + delta)
	case StatCreated:
		s.Created = clampZero(s.Created + delta)
	}
}

func clampZero(value int) int {
	if value < 0 {
		return 0
	}
	return value
}

// Preferences holds per-user display settings.
type Preferences struct {
	Language      string `json:"language,omitempty"`
	Theme         string `json:"theme,omitempty"`
	Notifications bool   `json:"notifications"`
}

// User is an actor of the portal.
type User struct {
	ID          string       `json:"id"`
	Username    string       `json:"username"`
	Name        string       `json:"name"`
	Team        string       `json:"team,omitempty"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions,omitempty"`
	Stats       Stats        `json:"stats"`
	Preferences Preferences  `json:"preferences"`
}

// Authenticated reports whether the user carries an identity.
func (u User) Authenticated() bool {
	return strings.TrimSpace(u.ID) != ""
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Authenticated() && u.Role == RoleAdmin
}

// IsCreator reports whether the user holds the creator role.
func (u User) IsCreator() bool {
	return u.Authenticated() && u.Role == RoleCreator
}

// Can reports whether the user's role grants permission.
func (u User) Can(permission Permission) bool {
	if !u.Authenticated() {
		return false
	}
	for _, granted := range PermissionsFor(u.Role) {
		if granted == permission {
			return true
		}
	}
	return false
}

// DisplayName returns the full name, falling back to the username.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return strings.TrimSpace(u.Username)
}

// MatchesName reports whether value equals the user's full name or username.
func (u User) MatchesName(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	return trimmed == strings.TrimSpace(u.Name) || trimmed == strings.TrimSpace(u.Username)
}

func (u User) withDerivedPermissions() User {
	u.Permissions = PermissionsFor(u.Role)
	return u
}
