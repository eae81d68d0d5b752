package mailchimp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

const (
	defaultPageSize = 1000
	maxErrorBody    = 4 << 10
)

// APIError is the problem document returned by the Marketing API.
type APIError struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("mailchimp %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("mailchimp %d %s", e.Status, e.Title)
}

// Options configures a Client.
type Options struct {
	// BaseURL overrides https://<dc>.api.mailchimp.com/3.0.
	BaseURL           string
	DataCenter        string
	APIKey            string
	ListID            string
	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client is a typed wrapper around the Marketing API v3.
type Client struct {
	baseURL  string
	apiKey   string
	listID   string
	pageSize int
	limiter  *rate.Limiter
	http     *http.Client
}

var _ ports.CampaignService = (*Client)(nil)

// NewClient creates a rate limited API client.
func NewClient(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.api.mailchimp.com/3.0", opts.DataCenter)
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:  base,
		apiKey:   opts.APIKey,
		listID:   opts.ListID,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(limit, 1),
		http:     httpClient,
	}
}

// Ping checks credentials and API health.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		HealthStatus string `json:"health_status"`
	}
	if err := c.do(ctx, http.MethodGet, "/ping", nil, nil, &resp); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

type interestPage struct {
	Interests []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"interests"`
	TotalItems int `json:"total_items"`
}

// ListInterests returns every interest of the category on the configured list.
func (c *Client) ListInterests(ctx context.Context, categoryID string) ([]domain.Interest, error) {
	path := fmt.Sprintf("/lists/%s/interest-categories/%s/interests",
		url.PathEscape(c.listID), url.PathEscape(categoryID))

	var out []domain.Interest
	for offset := 0; ; {
		var page interestPage
		if err := c.do(ctx, http.MethodGet, path, c.pageQuery(offset, nil), nil, &page); err != nil {
			return nil, fmt.Errorf("list interests: %w", err)
		}
		for _, in := range page.Interests {
			out = append(out, domain.Interest{ID: in.ID, Name: in.Name})
		}
		offset += len(page.Interests)
		if len(page.Interests) == 0 || offset >= page.TotalItems {
			return out, nil
		}
	}
}

// CreateTemplate uploads a user template and returns its id.
func (c *Client) CreateTemplate(ctx context.Context, name, html string) (string, error) {
	payload := map[string]any{"name": name, "html": html}

	var resp struct {
		ID json.Number `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/templates", nil, payload, &resp); err != nil {
		return "", fmt.Errorf("create template: %w", err)
	}
	return resp.ID.String(), nil
}

// DeleteTemplate removes a template; an unknown id counts as deleted.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.delete(ctx, "/templates/"+url.PathEscape(id))
}

type segmentCondition struct {
	ConditionType string   `json:"condition_type"`
	Field         string   `json:"field"`
	Op            string   `json:"op"`
	Value         []string `json:"value"`
}

type campaignRequest struct {
	Type       string `json:"type"`
	Recipients struct {
		ListID      string `json:"list_id"`
		SegmentOpts struct {
			Match      string             `json:"match"`
			Conditions []segmentCondition `json:"conditions"`
		} `json:"segment_opts"`
	} `json:"recipients"`
	Settings struct {
		SubjectLine string `json:"subject_line"`
		PreviewText string `json:"preview_text,omitempty"`
		Title       string `json:"title"`
		FromName    string `json:"from_name"`
		ReplyTo     string `json:"reply_to"`
		InlineCSS   bool   `json:"inline_css"`
		TemplateID  int64  `json:"template_id"`
	} `json:"settings"`
}

func newCampaignRequest(spec domain.CampaignSpec) (campaignRequest, error) {
	var req campaignRequest
	templateID, err := strconv.ParseInt(spec.TemplateID, 10, 64)
	if err != nil {
		return req, fmt.Errorf("template id %q: %w", spec.TemplateID, err)
	}

	req.Type = "regular"
	req.Recipients.ListID = spec.ListID
	req.Recipients.SegmentOpts.Match = spec.Match
	req.Recipients.SegmentOpts.Conditions = make([]segmentCondition, 0, len(spec.Conditions))
	for _, cond := range spec.Conditions {
		req.Recipients.SegmentOpts.Conditions = append(req.Recipients.SegmentOpts.Conditions, segmentCondition{
			ConditionType: cond.ConditionType,
			Field:         cond.Field,
			Op:            cond.Operator,
			Value:         cond.Values,
		})
	}
	req.Settings.SubjectLine = spec.SubjectLine
	req.Settings.PreviewText = spec.PreviewText
	req.Settings.Title = spec.Title
	req.Settings.FromName = spec.FromName
	req.Settings.ReplyTo = spec.ReplyTo
	req.Settings.InlineCSS = true
	req.Settings.TemplateID = templateID
	return req, nil
}

// CreateCampaign creates a regular campaign segmented on the spec's conditions.
func (c *Client) CreateCampaign(ctx context.Context, spec domain.CampaignSpec) (string, error) {
	payload, err := newCampaignRequest(spec)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/campaigns", nil, payload, &resp); err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return resp.ID, nil
}

// SendCampaign triggers delivery. It cannot be undone.
func (c *Client) SendCampaign(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(id)+"/actions/send", nil, nil, nil); err != nil {
		return fmt.Errorf("send campaign: %w", err)
	}
	return nil
}

// DeleteCampaign removes a campaign; an unknown id counts as deleted.
func (c *Client) DeleteCampaign(ctx context.Context, id string) error {
	return c.delete(ctx, "/campaigns/"+url.PathEscape(id))
}

// ListTemplates returns all user-created templates.
func (c *Client) ListTemplates(ctx context.Context) ([]domain.ProviderResource, error) {
	var out []domain.ProviderResource
	for offset := 0; ; {
		var page struct {
			Templates []struct {
				ID   json.Number `json:"id"`
				Name string      `json:"name"`
				Type string      `json:"type"`
			} `json:"templates"`
			TotalItems int `json:"total_items"`
		}
		query := c.pageQuery(offset, url.Values{"type": {"user"}})
		if err := c.do(ctx, http.MethodGet, "/templates", query, nil, &page); err != nil {
			return nil, fmt.Errorf("list templates: %w", err)
		}
		for _, tpl := range page.Templates {
			if tpl.Type != "" && tpl.Type != "user" {
				continue
			}
			out = append(out, domain.ProviderResource{
				Kind: domain.ResourceTemplate,
				ID:   tpl.ID.String(),
				Name: tpl.Name,
			})
		}
		offset += len(page.Templates)
		if len(page.Templates) == 0 || offset >= page.TotalItems {
			return out, nil
		}
	}
}

// ListCampaigns returns every campaign of the account.
func (c *Client) ListCampaigns(ctx context.Context) ([]domain.ProviderResource, error) {
	var out []domain.ProviderResource
	for offset := 0; ; {
		var page struct {
			Campaigns []struct {
				ID       string `json:"id"`
				Status   string `json:"status"`
				Settings struct {
					Title string `json:"title"`
				} `json:"settings"`
			} `json:"campaigns"`
			TotalItems int `json:"total_items"`
		}
		if err := c.do(ctx, http.MethodGet, "/campaigns", c.pageQuery(offset, nil), nil, &page); err != nil {
			return nil, fmt.Errorf("list campaigns: %w", err)
		}
		for _, cmp := range page.Campaigns {
			out = append(out, domain.ProviderResource{
				Kind:   domain.ResourceCampaign,
				ID:     cmp.ID,
				Name:   cmp.Settings.Title,
				Status: cmp.Status,
			})
		}
		offset += len(page.Campaigns)
		if len(page.Campaigns) == 0 || offset >= page.TotalItems {
			return out, nil
		}
	}
}

func (c *Client) pageQuery(offset int, extra url.Values) url.Values {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("count", strconv.Itoa(c.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

func (c *Client) delete(ctx context.Context, path string) error {
	err := c.do(ctx, http.MethodDelete, path, nil, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth("anystring", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, apiErr)
		if apiErr.Status == 0 {
			apiErr.Status = resp.StatusCode
		}
	}
	return apiErr
}
