package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// Document is a fetched page as persisted in a research folder: a short
// header block followed by a blank line and the extracted text.
//
//	Title: Go 1.22 release notes
//	URL: https://go.dev/doc/go1.22
//	Fetched: 2024-02-06T10:00:00Z
//
//	<body>
type Document struct {
	Title   string
	URL     string
	Fetched time.Time
	Body    string
}

const (
	headerTitle   = "Title"
	headerURL     = "URL"
	headerFetched = "Fetched"
)

// Render returns the on-disk form of d.
func (d Document) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", headerTitle, oneLine(d.Title))
	fmt.Fprintf(&b, "%s: %s\n", headerURL, oneLine(d.URL))
	if !d.Fetched.IsZero() {
		fmt.Fprintf(&b, "%s: %s\n", headerFetched, d.Fetched.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(d.Body))
	b.WriteString("\n")
	return b.String()
}

// ParseDocument reads the header block if present. Files without a
// well-formed header are treated as plain text bodies.
func ParseDocument(raw string) Document {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	plain := Document{Body: strings.TrimSpace(raw)}

	head, body, found := strings.Cut(raw, "\n\n")
	if !found || strings.TrimSpace(head) == "" {
		return plain
	}
	var doc Document
	for _, line := range strings.Split(head, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return plain
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case headerTitle:
			doc.Title = value
		case headerURL:
			doc.URL = value
		case headerFetched:
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				doc.Fetched = ts
			}
		default:
			return plain
		}
	}
	doc.Body = strings.TrimSpace(body)
	return doc
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
