package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var markupPolicy = newMarkupPolicy()

func newMarkupPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("abbr", "acronym", "b", "blockquote", "code", "em", "i",
		"li", "ol", "pre", "strong", "ul", "h1", "h2", "h3", "p")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("title").OnElements("a", "abbr", "acronym")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	return p
}

// RenderMarkdown converts Markdown source into sanitized HTML. Disallowed tags are dropped with
// their text kept, and links get rel="nofollow".
func RenderMarkdown(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	raw := blackfriday.Run([]byte(source))
	return strings.TrimSpace(markupPolicy.Sanitize(string(raw)))
}

// Sanitize strips everything outside the markup allow-list from an HTML fragment.
func Sanitize(input string) string {
	return markupPolicy.Sanitize(input)
}
