package reconcile

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"feedmirror/internal/payload"
	"feedmirror/internal/render"
)

// ItemKey derives the stable identity of a feed item. The first non-empty
// tier wins: url, slug, id, lowercased title, then the 1-based position.
func ItemKey(item payload.Value, index int) string {
	if link := render.ItemURL(item); link != "" {
		return "url:" + link
	}
	if slug := item.GetString("slug"); slug != "" {
		return "slug:" + slug
	}
	if id, ok := item.Get("id"); ok && !id.IsNull() {
		if s, ok := id.Scalar(); ok && strings.TrimSpace(s) != "" {
			return "id:" + strings.TrimSpace(s)
		}
	}
	for _, key := range []string{"title", "name", "headline"} {
		if title := item.GetString(key); title != "" {
			return "title:" + cases.Lower(language.Und).String(title)
		}
	}
	return "idx:" + strconv.Itoa(index)
}
