package static

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "ResearcherAgent/test" {
			t.Errorf("user agent = %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Channels</title></head><body><article>
<p>Channels let goroutines communicate by passing values, and an unbuffered channel synchronises sender and receiver.</p>
<p>Buffered channels decouple the two sides up to their capacity, which smooths bursts of work between stages.</p>
</article></body></html>`))
	}))
	defer srv.Close()

	f := Fetch{UserAgent: "ResearcherAgent/test"}
	res, err := f.Exec(context.Background(), srv.URL+"/channels")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Status != http.StatusOK || !strings.Contains(res.Text, "unbuffered channel") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("RFC text\n\n\n\nsecond paragraph"))
	}))
	defer srv.Close()

	res, err := Fetch{}.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Text != "RFC text\n\nsecond paragraph" {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		}
	}))
	defer srv.Close()

	res, err := Fetch{}.Exec(context.Background(), srv.URL+"/missing")
	if err == nil || res.Status != http.StatusNotFound {
		t.Fatalf("expected 404 error, got %+v %v", res, err)
	}
	if _, err := (Fetch{}).Exec(context.Background(), srv.URL+"/pdf"); !errors.Is(err, ErrUnsupportedContent) {
		t.Fatalf("expected ErrUnsupportedContent, got %v", err)
	}
	if _, err := (Fetch{}).Exec(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
