package mailer

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// blockElements end a line in the plain-text rendition
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// PlainText derives the text/plain alternative of an HTML body. Links keep
// their target in brackets so they survive clients that ignore HTML.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()

	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, node *goquery.Selection) {
			name := goquery.NodeName(node)
			if name == "#text" {
				raw := node.Text()
				if raw != "" && unicode.IsSpace(rune(raw[0])) {
					b.WriteString(" ")
				}
				b.WriteString(strings.Join(strings.Fields(raw), " "))
				if raw != "" && unicode.IsSpace(rune(raw[len(raw)-1])) {
					b.WriteString(" ")
				}
				return
			}
			walk(node)
			if name == "a" {
				if href, ok := node.Attr("href"); ok && href != "" && href != strings.TrimSpace(node.Text()) {
					b.WriteString(" [" + href + "]")
				}
			}
			if blockElements[name] {
				b.WriteString("\n")
			}
		})
	}
	walk(doc.Selection)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// textBody returns the request's text part, deriving it from HTML when missing
func textBody(text, html string) string {
	if text != "" {
		return text
	}
	return PlainText(html)
}
