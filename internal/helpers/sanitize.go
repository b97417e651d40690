package helpers

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a shared policy that strips every element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PlainText strips markup from s and tidies whitespace so the result can be
// stored as a research document: entities are decoded, runs of spaces inside
// a line collapse to one, and consecutive blank lines collapse to one.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	stripped := html.UnescapeString(StrictHTMLPolicy().Sanitize(s))
	return NormalizeWhitespace(stripped)
}

// NormalizeWhitespace trims every line, collapses inner space runs and keeps
// at most one blank line between paragraphs.
func NormalizeWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
