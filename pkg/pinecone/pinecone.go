// Package pinecone is a minimal REST client for a Pinecone-style vector
// index. Only the query surface the agent needs is implemented.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	IndexHost string        `envconfig:"INDEX_HOST" split_words:"true" required:"true"`
	APIKey    string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Namespace string        `envconfig:"NAMESPACE" split_words:"true" default:"teaching-methods"`
	TopK      int           `envconfig:"TOP_K" split_words:"true" default:"5"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Match is one scored record from a query.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// ClientOption customizes Client.
type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithNamespace(namespace string) ClientOption {
	return func(c *Client) {
		trimmed := strings.TrimSpace(namespace)
		if trimmed != "" {
			c.namespace = trimmed
		}
	}
}

// Client queries a single vector index over REST.
type Client struct {
	baseURL    string
	apiKey     string
	namespace  string
	topK       int
	httpClient *http.Client
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.IndexHost), "/")
	if baseURL == "" {
		return nil, errors.New("pinecone index host is required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid pinecone index host: %w", err)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("pinecone api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}

	client := &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		namespace: strings.TrimSpace(cfg.Namespace),
		topK:      topK,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

func MustNew(cfg Config, opts ...ClientOption) *Client {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return client
}

type queryRequest struct {
	Vector          []float64      `json:"vector"`
	TopK            int            `json:"topK"`
	Namespace       string         `json:"namespace,omitempty"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

// Query returns the topK nearest records for the embedding, optionally
// restricted by a metadata filter. topK <= 0 uses the configured default.
func (c *Client) Query(ctx context.Context, embedding []float64, topK int, filter map[string]any) ([]Match, error) {
	if len(embedding) == 0 {
		return nil, errors.New("query embedding is empty")
	}
	if topK <= 0 {
		topK = c.topK
	}

	body, err := json.Marshal(queryRequest{
		Vector:          embedding,
		TopK:            topK,
		Namespace:       c.namespace,
		Filter:          filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute query request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read query response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("pinecone http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed queryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return parsed.Matches, nil
}
