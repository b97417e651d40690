package brave

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/researcher/internal/httpclient"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

const DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

type Search struct {
	ApiKey   string
	Endpoint string
	Client   *httpclient.Client
}

type response struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Discover runs q against the Brave web search API
// (https://api.search.brave.com/app/documentation/web-search).
func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	if k <= 0 {
		k = 10
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(k))

	var raw response
	headers := map[string]string{"X-Subscription-Token": s.ApiKey}
	if err := s.Client.DoJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), headers, nil, &raw); err != nil {
		return nil, err
	}

	out := make([]models.Result, 0, min(k, len(raw.Web.Results)))
	for _, r := range raw.Web.Results {
		if len(out) >= k {
			break
		}
		if r.URL == "" {
			continue
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}
