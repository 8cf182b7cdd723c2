// Package websearch is the HTTP adapter for the web retrieval stage. It talks
// to any JSON search API; where the results live in the response is
// configured with gjson paths.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"ragguard/internal/evidence"
	"ragguard/internal/textutil"

	"github.com/tidwall/gjson"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// ErrMalformedResponse is returned when the body is not valid JSON.
var ErrMalformedResponse = errors.New("malformed search response")

// Config describes the search endpoint and its response layout.
type Config struct {
	// Endpoint is the search URL; the query and count are added as
	// parameters.
	Endpoint string
	APIKey   string
	// QueryParam and CountParam name the request parameters.
	QueryParam string
	CountParam string
	// ResultsPath locates the result array. Title, Snippet, URL and Score
	// paths are evaluated against each element. ScorePath is optional;
	// without it results score by position.
	ResultsPath string
	TitlePath   string
	SnippetPath string
	URLPath     string
	ScorePath   string
	// MaxSnippetRunes truncates long snippets. Zero keeps them whole.
	MaxSnippetRunes int
}

// DefaultConfig returns the layout of a flat {"results":[{title,snippet,url}]}
// response.
func DefaultConfig() Config {
	return Config{
		QueryParam:      "q",
		CountParam:      "count",
		ResultsPath:     "results",
		TitlePath:       "title",
		SnippetPath:     "snippet",
		URLPath:         "url",
		MaxSnippetRunes: 1200,
	}
}

// Client searches the web over HTTP.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a web search client. Empty layout fields take their
// DefaultConfig values.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.QueryParam == "" {
		cfg.QueryParam = def.QueryParam
	}
	if cfg.CountParam == "" {
		cfg.CountParam = def.CountParam
	}
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = def.ResultsPath
	}
	if cfg.TitlePath == "" {
		cfg.TitlePath = def.TitlePath
	}
	if cfg.SnippetPath == "" {
		cfg.SnippetPath = def.SnippetPath
	}
	if cfg.URLPath == "" {
		cfg.URLPath = def.URLPath
	}
	return &Client{cfg: cfg, client: http.DefaultClient}
}

// Search queries the endpoint for up to topK results. Results without a URL
// are dropped; the canonical URL becomes the slice ID.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error) {
	if topK <= 0 {
		return nil, nil
	}

	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	params := u.Query()
	params.Set(c.cfg.QueryParam, query)
	params.Set(c.cfg.CountParam, strconv.Itoa(topK))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.APIKey))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, textutil.Truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedResponse
	}

	return c.parse(body, topK), nil
}

func (c *Client) parse(body []byte, topK int) []evidence.ContextSlice {
	var out []evidence.ContextSlice
	gjson.GetBytes(body, c.cfg.ResultsPath).ForEach(func(_, item gjson.Result) bool {
		link := item.Get(c.cfg.URLPath).String()
		if link == "" {
			return true
		}
		s := evidence.ContextSlice{
			ID:      evidence.CanonicalURL(link),
			Source:  evidence.SourceWeb,
			Origin:  evidence.SourceWeb,
			Title:   textutil.HTMLToText(item.Get(c.cfg.TitlePath).String()),
			Snippet: textutil.Truncate(textutil.HTMLToText(item.Get(c.cfg.SnippetPath).String()), c.cfg.MaxSnippetRunes),
			URL:     link,
			Score:   1 / float64(len(out)+1),
		}
		if c.cfg.ScorePath != "" {
			if v := item.Get(c.cfg.ScorePath); v.Exists() {
				s.Score = v.Float()
			}
		}
		out = append(out, s)
		return len(out) < topK
	})
	return evidence.Renumber(out)
}
