package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragguard/internal/rerank"
)

var _ rerank.Scorer = (*CrossEncoderClient)(nil)

func TestCrossEncoderClient_Score(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			t.Errorf("expected /v1/rerank, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Query != "tax" || req.TopN != 3 || req.Model != "bge-reranker" {
			t.Errorf("unexpected request %+v", req)
		}
		if req.Documents[0] != "Title\nbody one" || req.Documents[1] != "body two" {
			t.Errorf("unexpected documents %q", req.Documents)
		}
		// Results come back sorted by relevance, not input order.
		_, _ = w.Write([]byte(`{"results":[
			{"index":2,"relevance_score":0.9},
			{"index":0,"relevance_score":0.4},
			{"index":1,"relevance_score":0.1}
		]}`))
	}))
	defer server.Close()

	c := NewCrossEncoderClient(server.URL+"/", "k", "bge-reranker")
	scores, err := c.Score(context.Background(), "tax", []rerank.Document{
		{Title: "Title", Text: "body one"},
		{Text: "body two"},
		{Text: "body three"},
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	want := []float64{0.4, 0.1, 0.9}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
}

func TestCrossEncoderClient_Score_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "missing document", body: `{"results":[{"index":0,"relevance_score":0.5}]}`, code: http.StatusOK},
		{name: "index out of range", body: `{"results":[{"index":0,"relevance_score":0.5},{"index":5,"relevance_score":0.1}]}`, code: http.StatusOK},
		{name: "bad status", body: `overloaded`, code: http.StatusServiceUnavailable},
		{name: "bad json", body: `{`, code: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewCrossEncoderClient(server.URL, "", "").Score(context.Background(), "q", []rerank.Document{{Text: "a"}, {Text: "b"}})
			if err == nil {
				t.Fatal("Score() expected error")
			}
		})
	}
}

func TestCrossEncoderClient_Score_Empty(t *testing.T) {
	scores, err := NewCrossEncoderClient("http://127.0.0.1:1", "", "").Score(context.Background(), "q", nil)
	if err != nil || scores != nil {
		t.Fatalf("Score() = %v, %v", scores, err)
	}
}
