package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoogleBooksSearch(t *testing.T) {
	t.Run("parses volumes response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/volumes" {
				t.Errorf("path = %q, want /volumes", r.URL.Path)
			}
			q := r.URL.Query().Get("q")
			if q == "" {
				t.Error("missing q parameter")
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"items": [{
					"volumeInfo": {
						"title": "Transformer",
						"authors": ["Nick Lane"],
						"publisher": "Profile Books",
						"publishedDate": "2022",
						"industryIdentifiers": [
							{"type": "ISBN_10", "identifier": "1782834508"},
							{"type": "ISBN_13", "identifier": "9781782834502"}
						],
						"imageLinks": {"thumbnail": "http://example.com/t.jpg"}
					}
				}]
			}`))
		}))
		defer srv.Close()

		p := NewGoogleBooksProvider(ProviderConfig{BaseURL: srv.URL, RateLimit: 600})
		results, err := p.Search(context.Background(), "Transformer", "Nick Lane")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		r := results[0]
		if r.Title != "Transformer" {
			t.Errorf("Title = %q", r.Title)
		}
		if len(r.Authors) != 1 || r.Authors[0] != "Nick Lane" {
			t.Errorf("Authors = %v", r.Authors)
		}
		if r.ISBN != "9781782834502" {
			t.Errorf("ISBN = %q, want ISBN-13 preferred", r.ISBN)
		}
		if r.Publisher != "Profile Books" {
			t.Errorf("Publisher = %q", r.Publisher)
		}
	})

	t.Run("empty result set", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		p := NewGoogleBooksProvider(ProviderConfig{BaseURL: srv.URL, RateLimit: 600})
		results, err := p.Search(context.Background(), "Nonexistent Book", "")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("got %d results, want 0", len(results))
		}
	})

	t.Run("server error surfaces after retries", func(t *testing.T) {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := NewGoogleBooksProvider(ProviderConfig{BaseURL: srv.URL, RateLimit: 600})
		p.retryDelay = time.Millisecond

		if _, err := p.Search(context.Background(), "Anything", ""); err == nil {
			t.Fatal("expected error after retries exhausted")
		}
		if calls.Load() != int64(p.maxRetries) {
			t.Errorf("server called %d times, want %d", calls.Load(), p.maxRetries)
		}
	})

	t.Run("empty title rejected", func(t *testing.T) {
		p := NewGoogleBooksProvider(ProviderConfig{RateLimit: 600})
		if _, err := p.Search(context.Background(), "  ", ""); err == nil {
			t.Error("expected error for empty title")
		}
	})
}

func TestOpenLibrarySearch(t *testing.T) {
	t.Run("parses search response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/search.json" {
				t.Errorf("path = %q, want /search.json", r.URL.Path)
			}
			w.Write([]byte(`{
				"docs": [{
					"title": "Transformer",
					"author_name": ["Nick Lane"],
					"publisher": ["Profile Books", "Other"],
					"first_publish_year": 2022,
					"isbn": ["1782834508", "9781782834502"],
					"cover_i": 12345
				}]
			}`))
		}))
		defer srv.Close()

		p := NewOpenLibraryProvider(ProviderConfig{BaseURL: srv.URL, RateLimit: 600})
		results, err := p.Search(context.Background(), "Transformer", "Nick Lane")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		r := results[0]
		if r.ISBN != "9781782834502" {
			t.Errorf("ISBN = %q, want 13-digit preferred", r.ISBN)
		}
		if r.Publisher != "Profile Books" {
			t.Errorf("Publisher = %q", r.Publisher)
		}
		if r.PublishedDate != "2022" {
			t.Errorf("PublishedDate = %q", r.PublishedDate)
		}
		if r.ThumbnailURL == "" {
			t.Error("ThumbnailURL not derived from cover_i")
		}
	})

	t.Run("rate limited response retried", func(t *testing.T) {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, "slow down", http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"docs": [{"title": "Dune"}]}`))
		}))
		defer srv.Close()

		p := NewOpenLibraryProvider(ProviderConfig{BaseURL: srv.URL, RateLimit: 600})
		p.retryDelay = time.Millisecond

		results, err := p.Search(context.Background(), "Dune", "")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Errorf("got %d results after retry, want 1", len(results))
		}
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockProvider()

		r.Register("test", mock)

		p, err := r.Get("test")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if p != mock {
			t.Error("got different provider than registered")
		}
	})

	t.Run("get nonexistent", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.Get("nope"); err == nil {
			t.Error("expected error for unknown provider")
		}
	})

	t.Run("all returns stable order", func(t *testing.T) {
		r := NewRegistry()
		r.Register("zeta", NewMockProvider())
		r.Register("alpha", NewMockProvider())

		all := r.All()
		if len(all) != 2 {
			t.Fatalf("All() returned %d providers, want 2", len(all))
		}
		names := r.List()
		if names[0] != "alpha" || names[1] != "zeta" {
			t.Errorf("List() = %v, want sorted", names)
		}
	})

	t.Run("config-driven construction", func(t *testing.T) {
		cfgs := map[string]ProviderConfig{
			"googlebooks": {Enabled: true, RateLimit: 60},
			"openlibrary": {Enabled: false},
			"bogus":       {Enabled: true, Type: "unknown"},
		}
		r := NewRegistryFromConfig(cfgs, nil)

		if !r.Has("googlebooks") {
			t.Error("enabled provider not registered")
		}
		if r.Has("openlibrary") {
			t.Error("disabled provider registered")
		}
		if r.Has("bogus") {
			t.Error("unknown provider type registered")
		}
	})

	t.Run("reload drops removed providers", func(t *testing.T) {
		r := NewRegistryFromConfig(map[string]ProviderConfig{
			"googlebooks": {Enabled: true},
			"openlibrary": {Enabled: true},
		}, nil)

		r.Reload(map[string]ProviderConfig{
			"googlebooks": {Enabled: true},
		})

		if r.Has("openlibrary") {
			t.Error("removed provider still registered after reload")
		}
		if !r.Has("googlebooks") {
			t.Error("kept provider lost after reload")
		}
	})

	t.Run("reload keeps providers with unchanged config", func(t *testing.T) {
		r := NewRegistryFromConfig(map[string]ProviderConfig{
			"googlebooks": {Enabled: true, RateLimit: 60},
		}, nil)
		before, err := r.Get("googlebooks")
		if err != nil {
			t.Fatal(err)
		}

		// Unrelated config-change events must not discard limiter state.
		r.Reload(map[string]ProviderConfig{
			"googlebooks": {Enabled: true, RateLimit: 60},
		})
		after, err := r.Get("googlebooks")
		if err != nil {
			t.Fatal(err)
		}
		if before != after {
			t.Error("unchanged provider was rebuilt on reload")
		}

		r.Reload(map[string]ProviderConfig{
			"googlebooks": {Enabled: true, RateLimit: 10},
		})
		changed, err := r.Get("googlebooks")
		if err != nil {
			t.Fatal(err)
		}
		if changed == after {
			t.Error("changed provider config not applied on reload")
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows burst up to capacity", func(t *testing.T) {
		r := NewRateLimiter(10)
		for i := 0; i < 10; i++ {
			if !r.TryConsume() {
				t.Fatalf("token %d unavailable, want full bucket at start", i)
			}
		}
		if r.TryConsume() {
			t.Error("token available beyond capacity")
		}
	})

	t.Run("wait respects cancellation", func(t *testing.T) {
		r := NewRateLimiter(1)
		if !r.TryConsume() {
			t.Fatal("first token unavailable")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := r.Wait(ctx); err == nil {
			t.Error("Wait() should fail when context expires before refill")
		}
	})

	t.Run("drain empties bucket", func(t *testing.T) {
		r := NewRateLimiter(10)
		r.Drain()
		if r.TryConsume() {
			t.Error("token available after drain")
		}
	})

	t.Run("consumed counter", func(t *testing.T) {
		r := NewRateLimiter(5)
		r.TryConsume()
		r.TryConsume()
		if got := r.Consumed(); got != 2 {
			t.Errorf("Consumed() = %d, want 2", got)
		}
	})
}
