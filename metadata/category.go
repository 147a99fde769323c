package metadata

import "strings"

// Category is the coarse media class shown in the content library.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryDocument Category = "document"
)

// CategoryOf classifies a MIME type. Anything that is not an image or a video
// is a document.
func CategoryOf(contentType string) Category {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return CategoryImage
	case strings.HasPrefix(ct, "video/"):
		return CategoryVideo
	default:
		return CategoryDocument
	}
}

// ParseCategory accepts "image", "video" or "document".
func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryImage, CategoryVideo, CategoryDocument:
		return c, true
	default:
		return "", false
	}
}
