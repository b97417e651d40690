package serper

import (
	"context"
	"net/http"

	"github.com/mohammad-safakhou/researcher/internal/httpclient"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

const DefaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	ApiKey   string
	Endpoint string
	Client   *httpclient.Client
}

type request struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type response struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Discover runs q against serper.dev (https://serper.dev/) and returns the organic results.
func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	if k <= 0 {
		k = 10
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	var raw response
	headers := map[string]string{"X-API-KEY": s.ApiKey}
	if err := s.Client.DoJSON(ctx, http.MethodPost, endpoint, headers, request{Q: q, Num: k}, &raw); err != nil {
		return nil, err
	}

	out := make([]models.Result, 0, min(k, len(raw.Organic)))
	for _, it := range raw.Organic {
		if len(out) >= k {
			break
		}
		if it.Link == "" {
			continue
		}
		out = append(out, models.Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return out, nil
}
