// Package htmlsanitize cleans the admin-authored disabled-login notice.
// It uses bluemonday to strip anything beyond simple inline formatting.
package htmlsanitize

import (
	"html"
	"html/template"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	noticePolicy *bluemonday.Policy
	strictPolicy *bluemonday.Policy
	policyOnce   sync.Once
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("p", "br", "b", "strong", "i", "em", "u")
		p.AllowStandardURLs()
		p.AllowAttrs("href").OnElements("a")
		p.RequireNoFollowOnLinks(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
		noticePolicy = p

		strictPolicy = bluemonday.StrictPolicy()
	})
	return noticePolicy, strictPolicy
}

// Sanitize returns notice with everything but paragraphs, line breaks,
// emphasis and links removed.
func Sanitize(notice string) string {
	if notice == "" {
		return ""
	}
	p, _ := policies()
	return strings.TrimSpace(p.Sanitize(notice))
}

// Notice returns a sanitized notice ready to render. Plain text is escaped
// and its line breaks kept.
func Notice(notice string) template.HTML {
	if notice == "" {
		return ""
	}
	if IsPlainText(notice) {
		escaped := template.HTMLEscapeString(notice)
		return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
	}
	return template.HTML(Sanitize(notice))
}

// PlainText strips all markup, for use in text email bodies.
func PlainText(notice string) string {
	if notice == "" {
		return ""
	}
	_, strict := policies()
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(notice)))
}

// IsPlainText reports whether content has no HTML tags.
func IsPlainText(content string) bool {
	return !strings.Contains(content, "<") || !strings.Contains(content, ">")
}
