package payload

import (
	"strings"

	"github.com/mmcdole/gofeed"
)

const maxDepth = 3

// MetaKeys are envelope fields that never carry displayable data.
var MetaKeys = map[string]struct{}{
	"success":     {},
	"version":     {},
	"resource":    {},
	"timestamp":   {},
	"timezone":    {},
	"request_id":  {},
	"status_code": {},
}

var (
	wrapperKeys = []string{"data", "items", "results", "rows", "news", "events", "posts", "articles"}
	primaryKeys = []string{"association", "data", "result", "content", "details", "payload"}
)

// Rule tries to locate the item sequence in v. Rules are tried in order and
// the first match wins.
type Rule struct {
	Name  string
	Match func(v Value, depth int) ([]Value, bool)
}

// Rules is the ordered extraction rule set used by Items.
var Rules []Rule

func init() {
	Rules = []Rule{
		{Name: "array", Match: matchArray},
		{Name: "wrapper", Match: matchWrapper},
		{Name: "nested", Match: matchNested},
		{Name: "syndication", Match: matchSyndication},
	}
}

// Items returns the item sequence of a payload, or false when none of the
// rules found one.
func Items(v Value) ([]Value, bool) {
	return itemsAt(v, 0)
}

func itemsAt(v Value, depth int) ([]Value, bool) {
	if depth > maxDepth {
		return nil, false
	}
	for _, rule := range Rules {
		if items, ok := rule.Match(v, depth); ok {
			return items, true
		}
	}
	return nil, false
}

func matchArray(v Value, _ int) ([]Value, bool) {
	if v.IsArray() {
		return v.Items(), true
	}
	return nil, false
}

func matchWrapper(v Value, depth int) ([]Value, bool) {
	if !v.IsObject() {
		return nil, false
	}
	for _, key := range wrapperKeys {
		child, ok := v.Get(key)
		if !ok {
			continue
		}
		if child.IsArray() {
			return child.Items(), true
		}
		if child.IsObject() {
			if items, ok := itemsAt(child, depth+1); ok {
				return items, true
			}
		}
	}
	return nil, false
}

func matchNested(v Value, depth int) ([]Value, bool) {
	if !v.IsObject() {
		return nil, false
	}
	for _, f := range v.Fields() {
		if !f.Value.IsObject() {
			continue
		}
		if items, ok := itemsAt(f.Value, depth+1); ok {
			return items, true
		}
	}
	return nil, false
}

// matchSyndication handles feeds that answer with RSS or Atom instead of
// JSON; the fetcher wraps such bodies as {"raw": text}.
func matchSyndication(v Value, depth int) ([]Value, bool) {
	if depth != 0 || !v.IsObject() || v.Len() != 1 {
		return nil, false
	}
	raw, ok := v.Get("raw")
	if !ok {
		return nil, false
	}
	text, _ := raw.Str()
	if !strings.HasPrefix(strings.TrimSpace(text), "<") {
		return nil, false
	}

	feed, err := gofeed.NewParser().ParseString(text)
	if err != nil {
		return nil, false
	}

	items := make([]Value, 0, len(feed.Items))
	for _, item := range feed.Items {
		items = append(items, fromFeedItem(item))
	}
	return items, true
}

func fromFeedItem(item *gofeed.Item) Value {
	fields := make([]Field, 0, 8)
	add := func(key, val string) {
		if strings.TrimSpace(val) != "" {
			fields = append(fields, F(key, String(val)))
		}
	}

	add("title", item.Title)
	add("url", item.Link)
	add("id", item.GUID)
	add("content", item.Content)
	add("description", item.Description)
	add("published_at", item.Published)
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		add("author", item.Authors[0].Name)
	}
	if item.Image != nil {
		add("image", item.Image.URL)
	} else {
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				add("image", enc.URL)
				break
			}
		}
	}
	return Object(fields...)
}

// PrimaryBlock selects the part of an envelope that carries the data.
func PrimaryBlock(v Value) Value {
	if !v.IsObject() {
		return v
	}
	for _, key := range primaryKeys {
		if child, ok := v.Get(key); ok && (child.IsObject() || child.IsArray()) {
			return child
		}
	}
	for _, f := range v.Fields() {
		if _, meta := MetaKeys[f.Key]; meta {
			continue
		}
		if f.Value.IsObject() || f.Value.IsArray() {
			return f.Value
		}
	}
	return v
}

// Sections returns the non-meta, non-null attribute groups of the primary
// block, in payload order.
func Sections(v Value) []Field {
	primary := PrimaryBlock(v)
	if !primary.IsObject() {
		return nil
	}
	sections := make([]Field, 0, primary.Len())
	for _, f := range primary.Fields() {
		if _, meta := MetaKeys[f.Key]; meta {
			continue
		}
		if f.Value.IsNull() {
			continue
		}
		sections = append(sections, f)
	}
	return sections
}

// HasData reports whether a payload has anything worth displaying.
func HasData(v Value) bool {
	switch v.Kind() {
	case KindNull:
		return false
	case KindArray:
		return v.Len() > 0
	case KindString:
		s, _ := v.Str()
		return strings.TrimSpace(s) != ""
	case KindObject:
		if v.Len() == 0 {
			return false
		}
		for _, key := range []string{"data", "items", "results"} {
			child, ok := v.Get(key)
			if !ok {
				continue
			}
			if child.IsArray() || child.IsObject() {
				return child.Len() > 0
			}
			s, ok := child.Scalar()
			return ok && strings.TrimSpace(s) != ""
		}
		return true
	default:
		return true
	}
}
