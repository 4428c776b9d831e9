package manuals

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the lifecycle states a stored manual can hold.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
)

// BlockKind enumerates the content units a manual body is built from.
type BlockKind string

const (
	BlockText    BlockKind = "text"
	BlockHeading BlockKind = "heading"
	BlockQuote   BlockKind = "quote"
	BlockCode    BlockKind = "code"
	BlockImage   BlockKind = "image"
)

// Category is the single-select classification of a manual.
type Category string

const (
	CategoryDevelopment Category = "development"
	CategoryDesign      Category = "design"
	CategoryOperations  Category = "operations"
	CategorySecurity    Category = "security"
	CategoryOnboarding  Category = "onboarding"
	CategoryHR          Category = "hr"
	CategoryGeneral     Category = "general"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidManualID indicates that a manual identifier is empty or exceeds storage bounds.
	ErrInvalidManualID = errors.New("manuals: invalid manual id")
	// ErrInvalidCategory indicates a category outside the fixed enumeration.
	ErrInvalidCategory = errors.New("manuals: invalid category")
	// ErrInvalidBlockKind indicates a block kind outside the supported set.
	ErrInvalidBlockKind = errors.New("manuals: invalid block kind")
)

var categories = []Category{
	CategoryDevelopment,
	CategoryDesign,
	CategoryOperations,
	CategorySecurity,
	CategoryOnboarding,
	CategoryHR,
	CategoryGeneral,
}

// Categories lists the category enumeration in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory validates raw input against the enumeration. Blank input maps to general.
func ParseCategory(rawInput string) (Category, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return CategoryGeneral, nil
	}
	for _, category := range categories {
		if string(category) == trimmed {
			return category, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, rawInput)
}

// ValidateManualID trims and bounds-checks a manual identifier.
func ValidateManualID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidManualID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidManualID, maxIdentifierLength)
	}
	return trimmed, nil
}

// Block is one content unit of a manual body.
type Block struct {
	Kind     BlockKind `json:"kind"`
	Value    string    `json:"value"`
	ImageRef string    `json:"imageRef,omitempty"`
}

// Validate reports whether the block kind is supported.
func (b Block) Validate() error {
	switch b.Kind {
	case BlockText, BlockHeading, BlockQuote, BlockCode, BlockImage:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBlockKind, b.Kind)
	}
}

// Section is the legacy title/content body format, kept for older records.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Attachment describes an uploaded file linked to a manual.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
}

// Manual is the persisted document record.
type Manual struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Blocks      []Block     `json:"blocks,omitempty"`
	Sections    []Section   `json:"sections,omitempty"`
	Category    Category    `json:"category"`
	Tags        []string    `json:"tags,omitempty"`
	Version     string      `json:"version"`
	Versions    []string    `json:"versions,omitempty"`
	Status      Status      `json:"status"`
	Author      string      `json:"author"`
	AuthorID    string      `json:"authorId,omitempty"`
	UpdatedBy   string      `json:"updatedBy,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Thumbnail   string      `json:"thumbnail,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the repository.
func (m Manual) Clone() Manual {
	clone := m
	clone.Blocks = append([]Block(nil), m.Blocks...)
	clone.Sections = append([]Section(nil), m.Sections...)
	clone.Tags = append([]string(nil), m.Tags...)
	clone.Versions = append([]string(nil), m.Versions...)
	if m.Attachment != nil {
		attachment := *m.Attachment
		clone.Attachment = &attachment
	}
	return clone
}

// HasTag reports whether the manual carries tag, compared case-insensitively.
func (m Manual) HasTag(tag string) bool {
	needle := strings.ToLower(strings.TrimSpace(tag))
	for _, candidate := range m.Tags {
		if strings.ToLower(candidate) == needle {
			return true
		}
	}
	return false
}

// NormalizeTags trims tags, drops blanks and removes case-insensitive duplicates,
// keeping the first spelling in insertion order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
