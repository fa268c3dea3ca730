// Package htmlsanitize cleans user-supplied group text before it is stored.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
)

// Sanitize keeps basic formatting (paragraphs, emphasis, lists, links with
// safe schemes) and removes scripts, event handlers and embedded content.
// Used for group descriptions.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(ugc.Sanitize(s))
}

// StripTags removes all markup and returns plain text (entities decoded).
// Used for group names.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
