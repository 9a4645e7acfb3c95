package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	ugcPolicy    = bluemonday.UGCPolicy()
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// HTMLToMarkdown converts the small HTML subset feeds use for rich text
// into chat markdown. Anything else is reduced to its text.
func HTMLToMarkdown(src string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ugcPolicy.Sanitize(src)))
	if err != nil {
		return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(src))
	}

	var b strings.Builder
	writeNodes(&b, doc.Find("body").Contents())

	out := blankLinesRe.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out)
}

func writeNodes(b *strings.Builder, sel *goquery.Selection) {
	sel.Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		switch node.Type {
		case html.TextNode:
			b.WriteString(node.Data)
		case html.ElementNode:
			writeElement(b, s)
		}
	})
}

func writeElement(b *strings.Builder, s *goquery.Selection) {
	children := s.Contents()

	switch goquery.NodeName(s) {
	case "br":
		b.WriteString("\n")
	case "p":
		writeNodes(b, children)
		b.WriteString("\n\n")
	case "strong", "b":
		wrap(b, "**", children)
	case "em", "i":
		wrap(b, "*", children)
	case "u":
		wrap(b, "__", children)
	case "s", "strike", "del":
		wrap(b, "~~", children)
	case "li":
		b.WriteString("\n- ")
		writeNodes(b, children)
	case "ul", "ol":
		b.WriteString("\n")
		writeNodes(b, children)
		b.WriteString("\n")
	case "a":
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		text := strings.TrimSpace(s.Text())
		if href == "" {
			b.WriteString(text)
			return
		}
		if text == "" {
			text = href
		}
		b.WriteString("[" + text + "](" + href + ")")
	default:
		writeNodes(b, children)
	}
}

func wrap(b *strings.Builder, marker string, children *goquery.Selection) {
	b.WriteString(marker)
	writeNodes(b, children)
	b.WriteString(marker)
}

// RichText converts HTML when the value looks like markup, then truncates.
func RichText(value string, maxLen int) string {
	text := value
	if strings.Contains(value, "<") && strings.Contains(value, ">") {
		text = HTMLToMarkdown(value)
	}
	return Truncate(text, maxLen)
}

// Truncate trims whitespace and cuts to maxLen runes, ending with "...".
func Truncate(value string, maxLen int) string {
	text := strings.TrimSpace(value)
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen-3]) + "..."
}

// capMessage keeps content under the platform limit.
func capMessage(text string) string {
	if utf8.RuneCountInString(text) <= messageLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:messageLimit-20]) + "\n..."
}
