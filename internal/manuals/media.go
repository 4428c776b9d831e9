package manuals

import (
	"net/url"
	"strings"
)

// IsDurableMediaRef reports whether ref survives beyond the page that produced it.
// Session-scoped blob: references and unknown schemes are not durable; http(s),
// data URIs and relative paths are.
func IsDurableMediaRef(ref string) bool {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "blob:") {
		return false
	}
	if strings.HasPrefix(lower, "data:") {
		return true
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "":
		return true
	case "http", "https":
		return parsed.Host != ""
	default:
		return false
	}
}

// SanitizeMedia replaces every non-durable media reference with "no image".
// The boolean reports whether anything was stripped.
func SanitizeMedia(manual Manual) (Manual, bool) {
	sanitized := manual.Clone()
	changed := false
	if !IsDurableMediaRef(sanitized.Thumbnail) {
		sanitized.Thumbnail = ""
		changed = true
	}
	for index, block := range sanitized.Blocks {
		if !IsDurableMediaRef(block.ImageRef) {
			sanitized.Blocks[index].ImageRef = ""
			changed = true
		}
		if block.Kind == BlockImage && !IsDurableMediaRef(block.Value) {
			sanitized.Blocks[index].Value = ""
			changed = true
		}
	}
	if sanitized.Attachment != nil && !IsDurableMediaRef(sanitized.Attachment.Ref) {
		sanitized.Attachment.Ref = ""
		changed = true
	}
	return sanitized, changed
}
