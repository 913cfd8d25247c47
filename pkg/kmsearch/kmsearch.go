// Package kmsearch queries the knowledge-management search API and merges
// results from parallel queries into one ranked hit list.
package kmsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// Document is the document record nested inside a search hit.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`

	// PublicID is the client-facing document id (doc-422 style). The
	// generator references documents by this id, never by the internal one.
	PublicID string `json:"publicId,omitempty"`

	SampleQuestions string `json:"sampleQuestions,omitempty"`

	// Metadata is a JSON string of client-facing attributes (images,
	// navigation). Decoded only when building metadata items, see [Join].
	Metadata string `json:"metadata,omitempty"`
}

// Item is one knowledge-base search hit.
type Item struct {
	Score         float64  `json:"score"`
	RerankerScore float64  `json:"rerankerScore"`
	DocumentID    string   `json:"documentId"`
	Document      Document `json:"document"`
}

// Key identifies the item for deduplication: the hit-level document id,
// falling back to the nested document's internal id.
func (it Item) Key() string {
	if it.DocumentID != "" {
		return it.DocumentID
	}
	return it.Document.ID
}

// Query is one search request.
type Query struct {
	// Content is the search text: the corrected question or one keyword.
	Content string

	// KnowledgeID selects the tenant's knowledge base.
	KnowledgeID int

	Language string

	// AssistantKey is the bearer token for this tenant/language.
	AssistantKey string
}

// Searcher is the search surface the pipeline depends on.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Item, error)
}

// Client calls the KM search HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Searcher = (*Client)(nil)

// Option is a functional option for [NewClient].
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for the search endpoint at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchRequest struct {
	Content     string `json:"content"`
	KnowledgeID int    `json:"knowledgeId"`
	Language    string `json:"language"`
}

type searchResponse struct {
	Total   int    `json:"total"`
	Source  string `json:"source"`
	Answers []any  `json:"answers"`
	Data    []Item `json:"data"`
}

// Search implements [Searcher].
func (c *Client) Search(ctx context.Context, q Query) ([]Item, error) {
	body, err := json.Marshal(searchRequest{
		Content:     q.Content,
		KnowledgeID: q.KnowledgeID,
		Language:    q.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("kmsearch: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kmsearch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+q.AssistantKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kmsearch: search %q: %w", q.Content, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kmsearch: search %q: unexpected status %d", q.Content, resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("kmsearch: decode response: %w", err)
	}
	return sr.Data, nil
}
