package unsplash

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQueryForPromptMapsStyles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		prompt string
		want   string
	}{
		{"a rustic wedding in Vermont", "rustic event decoration wood"},
		{"something Bohemian, please", "bohemian party pampas decor"},
		{"a corporate retreat", "a corporate retreat"},
		{"", "celebration party decoration"},
	}
	for _, tc := range cases {
		if got := QueryForPrompt(tc.prompt); got != tc.want {
			t.Fatalf("QueryForPrompt(%q) = %q, want %q", tc.prompt, got, tc.want)
		}
	}
}

func TestSearchSendsClientID(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotQuery map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"results":[{"id":"p1","urls":{"regular":"https://img/r","thumb":"https://img/t"}}]}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, AccessKey: "ak-1"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	client.WithHTTPClient(server.Client())

	photos, err := client.Search(context.Background(), "garden party", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotAuth != "Client-ID ak-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if got := gotQuery["query"]; len(got) != 1 || got[0] != "garden party" {
		t.Fatalf("query = %v", got)
	}
	if got := gotQuery["per_page"]; len(got) != 1 || got[0] != "3" {
		t.Fatalf("per_page = %v", got)
	}
	if len(photos) != 1 || photos[0].URLs.Regular != "https://img/r" {
		t.Fatalf("photos = %+v", photos)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{URL: "https://example.com", AccessKey: "ak-1"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.Search(context.Background(), "  ", 3); err == nil {
		t.Fatal("Search() error = nil, want empty query error")
	}
}
