// Package extract turns a fetched HTML page into article text.
package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
)

// FromHTML extracts the main article of page. When readability cannot find
// an article the whole page is reduced to plain text instead. Text is cut to
// maxChars runes when maxChars > 0.
func FromHTML(page, pageURL string, maxChars int) models.Result {
	sum := sha1.Sum([]byte(page))
	res := models.Result{
		URL:      pageURL,
		HTMLHash: hex.EncodeToString(sum[:]),
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(page), base)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		res.Title = strings.TrimSpace(article.Title)
		res.Byline = strings.TrimSpace(article.Byline)
		res.SiteName = strings.TrimSpace(article.SiteName)
		res.Text = helpers.NormalizeWhitespace(article.TextContent)
	} else {
		res.Text = helpers.PlainText(page)
	}
	res.Text = truncate(res.Text, maxChars)
	return res
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return strings.TrimSpace(string(runes[:maxChars]))
}

// FromText wraps an already plain-text page.
func FromText(text, pageURL string, maxChars int) models.Result {
	sum := sha1.Sum([]byte(text))
	return models.Result{
		URL:      pageURL,
		HTMLHash: hex.EncodeToString(sum[:]),
		Text:     truncate(helpers.NormalizeWhitespace(text), maxChars),
	}
}
