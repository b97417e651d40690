package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/tools/web_fetch/extract"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 5 << 20

// ErrUnsupportedContent is returned for responses that are not HTML or text.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Fetch downloads pages with a plain HTTP GET and extracts them without
// running scripts.
type Fetch struct {
	Client    *http.Client
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, errors.New("empty url")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Result{URL: url}, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return models.Result{URL: url}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Result{URL: url, Status: resp.StatusCode}, fmt.Errorf("fetch %s: http %d", url, resp.StatusCode)
	}
	mediaType := "text/html"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = mt
		}
	}
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" && mediaType != "text/plain" {
		return models.Result{URL: url, Status: resp.StatusCode}, fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Result{URL: url, Status: resp.StatusCode}, fmt.Errorf("read body: %w", err)
	}

	var res models.Result
	if mediaType == "text/plain" {
		res = extract.FromText(string(body), url, f.MaxChars)
	} else {
		res = extract.FromHTML(string(body), url, f.MaxChars)
	}
	res.Status = resp.StatusCode
	res.RenderMS = int(time.Since(t0) / time.Millisecond)
	return res, nil
}
