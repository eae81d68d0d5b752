package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Binding is one variable value of a SELECT result row.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
}

// Row maps variable names to their values.
type Row map[string]Binding

// Get returns the value of a variable or "" when it is unbound.
func (r Row) Get(name string) string {
	return r[name].Value
}

type results struct {
	Results struct {
		Bindings []Row `json:"bindings"`
	} `json:"results"`
}

// Client sends queries and updates to a SPARQL endpoint with sudo rights.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a client for the endpoint.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Query runs a SELECT query and returns its rows.
func (c *Client) Query(ctx context.Context, query string) ([]Row, error) {
	var res results
	if err := c.post(ctx, "query", query, "application/sparql-results+json", &res); err != nil {
		return nil, fmt.Errorf("sparql query: %w", err)
	}
	return res.Results.Bindings, nil
}

// Update runs an update request.
func (c *Client) Update(ctx context.Context, update string) error {
	if err := c.post(ctx, "update", update, "application/sparql-results+json", nil); err != nil {
		return fmt.Errorf("sparql update: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, field, body, accept string, v any) error {
	form := url.Values{}
	form.Set(field, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept)
	req.Header.Set("mu-auth-sudo", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
