package render

import (
	"strings"

	"feedmirror/internal/payload"
)

var (
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}
	imageKeys = []string{
		"image", "image_url", "thumbnail", "thumbnail_url", "photo",
		"picture", "banner", "cover", "avatar", "url",
	}
)

// ImageURL finds the first image link in a value, looking at well-known
// keys before any other field, at most three levels deep.
func ImageURL(v payload.Value) string {
	return findImage(v, 0)
}

func findImage(v payload.Value, depth int) string {
	if depth > 3 {
		return ""
	}

	switch v.Kind() {
	case payload.KindString:
		s, _ := v.Str()
		if looksLikeImage(s) {
			return strings.TrimSpace(s)
		}
	case payload.KindObject:
		for _, key := range imageKeys {
			if child, ok := v.Get(key); ok {
				if found := findImage(child, depth+1); found != "" {
					return found
				}
			}
		}
		for _, f := range v.Fields() {
			if found := findImage(f.Value, depth+1); found != "" {
				return found
			}
		}
	case payload.KindArray:
		for i, item := range v.Items() {
			if i >= 10 {
				break
			}
			if found := findImage(item, depth+1); found != "" {
				return found
			}
		}
	}
	return ""
}

func looksLikeImage(value string) bool {
	u := strings.ToLower(strings.TrimSpace(value))
	if !isHTTP(u) {
		return false
	}
	for _, ext := range imageExts {
		if strings.HasSuffix(u, ext) {
			return true
		}
	}
	return strings.Contains(u, "image")
}
