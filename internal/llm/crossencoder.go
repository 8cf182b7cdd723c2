package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ragguard/internal/rerank"
)

// CrossEncoderClient scores query/document pairs with a rerank server
// speaking the common /v1/rerank format (Jina, Cohere, TEI, llama.cpp).
type CrossEncoderClient struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

// NewCrossEncoderClient creates a new rerank client.
func NewCrossEncoderClient(baseURL, apiKey, model string) *CrossEncoderClient {
	return &CrossEncoderClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		client:  http.DefaultClient,
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score implements rerank.Scorer. The returned scores are aligned with docs;
// a response that does not score every document is an error.
func (c *CrossEncoderClient) Score(ctx context.Context, query string, docs []rerank.Document) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
		if d.Title != "" {
			texts[i] = d.Title + "\n" + d.Text
		}
	}

	var resp rerankResponse
	req := rerankRequest{Model: c.Model, Query: query, Documents: texts, TopN: len(docs)}
	if err := postJSON(ctx, c.client, c.BaseURL+"/v1/rerank", c.APIKey, req, &resp); err != nil {
		return nil, err
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("document %d was not scored", i)
		}
	}
	return scores, nil
}
