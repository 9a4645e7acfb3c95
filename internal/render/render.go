// Package render turns feed values into chat message text plus an
// optional image reference. Rendering is pure: the same value always
// yields the same output, which keeps content signatures stable.
package render

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"feedmirror/internal/payload"
)

const messageLimit = 1900

// Message is the display form of one tracked message.
type Message struct {
	Content  string
	ImageURL string
}

var (
	titleKeys     = []string{"title", "name", "nom", "label", "event", "headline"}
	itemTitleKeys = []string{"title", "name", "headline"}
	bodyKeys      = []string{"content", "article", "body", "text", "description", "summary", "excerpt"}
	linkKeys      = []string{"url", "scroll_url", "external_url", "news_url", "link", "permalink"}
	linkSubKeys   = []string{"self", "public", "web", "details"}

	summaryKeys = []string{
		"date", "created_at", "published_at", "updated_at", "start_at", "end_at",
		"status", "author", "location", "description", "excerpt", "subtitle",
	}
	blockedKeys = map[string]struct{}{
		"id": {}, "content": {}, "summary": {}, "category": {}, "categories": {},
		"body": {}, "text": {}, "html": {}, "markdown": {},
	}
	sectionTitles = map[string]string{
		"members":         "Members",
		"membres":         "Members",
		"values":          "Values",
		"valeurs":         "Values",
		"volunteers":      "Volunteers",
		"benevoles":       "Volunteers",
		"partners":        "Partners",
		"partenaires":     "Partners",
		"reports":         "Reports",
		"rapports":        "Reports",
		"association_url": "Association link",
	}
)

// Item renders one feed item as a standalone message.
func Item(item payload.Value, index int) Message {
	title := fmt.Sprintf("Item %d", index)
	for _, key := range itemTitleKeys {
		if s := item.GetString(key); s != "" {
			title = RichText(s, 120)
			break
		}
	}

	body := "No text available."
	for _, key := range bodyKeys {
		if s := item.GetString(key); s != "" {
			body = RichText(s, 1400)
			break
		}
	}

	lines := []string{"**" + title + "**", body}
	if link := ItemURL(item); link != "" {
		lines = append(lines, "[Read more]("+link+")")
	}

	return Message{
		Content:  capMessage(strings.Join(lines, "\n\n")),
		ImageURL: ImageURL(item),
	}
}

// ItemURL returns the first absolute http(s) link of an item.
func ItemURL(item payload.Value) string {
	if !item.IsObject() {
		return ""
	}
	for _, key := range linkKeys {
		if s := item.GetString(key); isHTTP(s) {
			return s
		}
	}
	if links, ok := item.Get("links"); ok && links.IsObject() {
		for _, key := range linkSubKeys {
			if s := links.GetString(key); isHTTP(s) {
				return s
			}
		}
	}
	return ""
}

// Section renders one attribute group of a collection.
func Section(collection, name string, value payload.Value) Message {
	header := fmt.Sprintf("**%s - %s**", strings.ToUpper(collection), SectionTitle(name))
	image := ImageURL(value)

	switch value.Kind() {
	case payload.KindString:
		s, _ := value.Str()
		if isHTTP(strings.TrimSpace(s)) {
			return Message{Content: capMessage(header + "\n\n[Open](" + strings.TrimSpace(s) + ")"), ImageURL: image}
		}
		return Message{Content: capMessage(header + "\n\n" + RichText(s, 1500)), ImageURL: image}

	case payload.KindArray:
		lines := []string{header}
		if value.Len() == 0 {
			lines = append(lines, "No data.")
			return Message{Content: strings.Join(lines, "\n\n"), ImageURL: image}
		}
		lines = append(lines, listLines(value.Items(), 8, 4)...)
		return Message{Content: capMessage(strings.Join(lines, "\n")), ImageURL: image}

	case payload.KindObject:
		lines := []string{header}
		fields := fieldLines(value, 10, 220)
		if len(fields) == 0 {
			lines = append(lines, compactJSON(value, 1400))
		}
		lines = append(lines, fields...)
		return Message{Content: capMessage(strings.Join(lines, "\n")), ImageURL: image}

	default:
		s, _ := value.Scalar()
		return Message{Content: capMessage(header + "\n\n" + Truncate(s, 1500)), ImageURL: image}
	}
}

// SectionTitle maps well-known attribute group names to display titles.
func SectionTitle(name string) string {
	if title, ok := sectionTitles[strings.ToLower(name)]; ok {
		return title
	}
	title := strings.ReplaceAll(name, "_", " ")
	if title == "" {
		return title
	}
	first, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToTitle(first)) + strings.ToLower(title[size:])
}

// Overview renders a whole payload as a single summary message.
func Overview(collection string, v payload.Value) Message {
	header := "**" + strings.ToUpper(collection) + "**"
	image := ImageURL(v)
	if !payload.HasData(v) {
		return Message{Content: header + "\n" + NoData(collection)}
	}

	primary := payload.PrimaryBlock(v)
	lines := []string{header}

	if items, ok := payload.Items(primary); ok {
		lines = append(lines, fmt.Sprintf("Total: **%d**", len(items)))
		if pagination, ok := v.Get("pagination"); ok && pagination.IsObject() {
			page, hasPage := scalarField(pagination, "page")
			pages, hasPages := scalarField(pagination, "total_pages")
			if hasPage && hasPages {
				lines = append(lines, fmt.Sprintf("Page **%s/%s**", page, pages))
			}
			if total, ok := scalarField(pagination, "total"); ok {
				lines = append(lines, fmt.Sprintf("API total: **%s**", total))
			}
		}
		if len(items) == 0 {
			lines = append(lines, NoData(collection))
			return Message{Content: strings.Join(lines, "\n"), ImageURL: image}
		}
		for i, item := range items {
			if i >= 5 {
				lines = append(lines, fmt.Sprintf("\n... and **%d** more.", len(items)-5))
				break
			}
			if !item.IsObject() {
				s, _ := item.Scalar()
				lines = append(lines, fmt.Sprintf("\n**%d.** %s", i+1, Truncate(s, 220)))
				continue
			}
			lines = append(lines, fmt.Sprintf("\n**%d. %s**", i+1, Title(item, i+1)))
			for _, field := range SummaryLines(item, 4) {
				lines = append(lines, "- "+field)
			}
			if link := ItemURL(item); link != "" {
				lines = append(lines, "- [Read more]("+link+")")
			}
		}
	} else if primary.IsObject() {
		fields := fieldLines(primary, 8, 200)
		if len(fields) == 0 {
			lines = append(lines, compactJSON(primary, 1200))
		}
		lines = append(lines, fields...)
	} else {
		s, _ := primary.Scalar()
		lines = append(lines, "- "+Truncate(s, 1200))
	}

	return Message{Content: capMessage(strings.Join(lines, "\n")), ImageURL: image}
}

func NoData(collection string) string {
	return fmt.Sprintf("No data currently available for `%s`.", collection)
}

// Title returns the display title of a list entry.
func Title(item payload.Value, index int) string {
	for _, key := range titleKeys {
		if s := item.GetString(key); s != "" {
			return RichText(s, 80)
		}
	}
	return fmt.Sprintf("Item %d", index)
}

// SummaryLines lists up to max scalar fields, preferred keys first.
func SummaryLines(item payload.Value, max int) []string {
	lines := make([]string, 0, max)
	used := make(map[string]struct{}, max)

	add := func(key string, v payload.Value) {
		s, ok := v.Scalar()
		if !ok || strings.TrimSpace(s) == "" {
			return
		}
		if v.Kind() == payload.KindString {
			s = RichText(s, 160)
		} else {
			s = Truncate(s, 160)
		}
		lines = append(lines, fmt.Sprintf("`%s`: %s", key, s))
		used[key] = struct{}{}
	}

	for _, key := range summaryKeys {
		if len(lines) >= max {
			return lines
		}
		if v, ok := item.Get(key); ok {
			add(key, v)
		}
	}

	for _, f := range item.Fields() {
		if len(lines) >= max {
			break
		}
		lower := strings.ToLower(f.Key)
		if _, done := used[f.Key]; done {
			continue
		}
		if isSummaryKey(f.Key) {
			continue
		}
		if _, blocked := blockedKeys[lower]; blocked || strings.HasSuffix(lower, "_id") {
			continue
		}
		add(f.Key, f.Value)
	}
	return lines
}

func isSummaryKey(key string) bool {
	for _, k := range summaryKeys {
		if k == key {
			return true
		}
	}
	return false
}

func listLines(items []payload.Value, maxItems, maxFields int) []string {
	lines := make([]string, 0, maxItems*2)
	for i, item := range items {
		if i >= maxItems {
			lines = append(lines, fmt.Sprintf("... and %d more.", len(items)-maxItems))
			break
		}
		if item.IsObject() {
			lines = append(lines, fmt.Sprintf("**%d. %s**", i+1, Title(item, i+1)))
			for _, s := range SummaryLines(item, maxFields) {
				lines = append(lines, "- "+s)
			}
			continue
		}
		s, ok := item.Scalar()
		if !ok {
			s = compactJSON(item, 200)
		}
		lines = append(lines, "- "+Truncate(s, 200))
	}
	return lines
}

func fieldLines(v payload.Value, max, maxLen int) []string {
	lines := make([]string, 0, max)
	for _, f := range v.Fields() {
		if _, meta := payload.MetaKeys[f.Key]; meta {
			continue
		}
		if len(lines) >= max {
			lines = append(lines, "- ...")
			break
		}
		s, ok := f.Value.Scalar()
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if f.Value.Kind() == payload.KindString {
			s = RichText(s, maxLen)
		} else {
			s = Truncate(s, maxLen)
		}
		lines = append(lines, fmt.Sprintf("- `%s`: %s", f.Key, s))
	}
	return lines
}

func scalarField(v payload.Value, key string) (string, bool) {
	child, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return child.Scalar()
}

func compactJSON(v payload.Value, maxLen int) string {
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return "```json\n" + Truncate(string(b), maxLen) + "\n```"
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
