package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragguard/internal/evidence"
)

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if got := r.URL.Query().Get("q"); got != "income tax" {
			t.Errorf("q = %q, want income tax", got)
		}
		if got := r.URL.Query().Get("count"); got != "2" {
			t.Errorf("count = %q, want 2", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"<b>Income</b> tax","snippet":"Rates &amp; brackets","url":"https://NTS.go.kr/tax/?utm_source=x#top"},
			{"title":"no link","snippet":"dropped"},
			{"title":"Second","snippet":"Deadlines","url":"https://gov.kr/a"},
			{"title":"Third","snippet":"over topK","url":"https://gov.kr/b"}
		]}`))
	}))
	defer server.Close()

	c := NewClient(Config{Endpoint: server.URL, APIKey: "secret"})
	got, err := c.Search(context.Background(), "income tax", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(got))
	}

	first := got[0]
	if first.ID != "https://nts.go.kr/tax" {
		t.Errorf("ID = %q, want canonical URL", first.ID)
	}
	if first.Title != "Income tax" || first.Snippet != "Rates & brackets" {
		t.Errorf("markup not stripped: %q / %q", first.Title, first.Snippet)
	}
	if first.Source != evidence.SourceWeb || first.Rank != 1 || first.Score != 1 {
		t.Errorf("unexpected first result %+v", first)
	}
	if got[1].ID != "https://gov.kr/a" || got[1].Rank != 2 || got[1].Score != 0.5 {
		t.Errorf("unexpected second result %+v", got[1])
	}
}

func TestClient_Search_CustomPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "q" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(`{"webPages":{"value":[{"name":"A","desc":"alpha","link":"https://a.example","rel":0.42}]}}`))
	}))
	defer server.Close()

	c := NewClient(Config{
		Endpoint:    server.URL + "/search?mkt=ko-KR",
		QueryParam:  "query",
		ResultsPath: "webPages.value",
		TitlePath:   "name",
		SnippetPath: "desc",
		URLPath:     "link",
		ScorePath:   "rel",
	})
	got, err := c.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "A" || got[0].Snippet != "alpha" || got[0].Score != 0.42 {
		t.Fatalf("Search() = %+v", got)
	}
}

func TestClient_Search_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"results":[`))
			},
			wantErr: ErrMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewClient(Config{Endpoint: server.URL}).Search(context.Background(), "q", 3)
			if err == nil {
				t.Fatal("Search() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Search() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Search_ZeroTopK(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://127.0.0.1:1"})
	got, err := c.Search(context.Background(), "q", 0)
	if err != nil || got != nil {
		t.Fatalf("Search() = %v, %v; want nil, nil", got, err)
	}
}
