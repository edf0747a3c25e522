package picker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carousel/internal/config"
	"carousel/internal/logging"
	"carousel/internal/services"
)

// HTTPDoer describes the HTTP client used by the picker service client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Item is one selectable entry reported by the picker service.
type Item struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	ByteSize int64  `json:"byte_size"`
}

type itemsPage struct {
	Items         []Item `json:"items"`
	NextPageToken string `json:"next_page_token"`
}

// Client talks to the remote picker service. Transport failures are mapped
// onto the services sentinels so callers can classify them without peeking
// at HTTP status codes.
type Client struct {
	baseURL  string
	token    string
	pageSize int
	client   HTTPDoer
	logger   *slog.Logger
}

// NewClient builds a picker client from configuration. Returns nil when no
// base URL is configured; callers treat a nil client as "picker disabled".
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if cfg == nil {
		return nil
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Picker.BaseURL), "/")
	if baseURL == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Picker.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		token:    strings.TrimSpace(cfg.Picker.Token),
		pageSize: cfg.Picker.PageSize,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(logging.String(logging.FieldComponent, "picker")),
	}
}

// NewClientWithDoer constructs a client over a caller-supplied HTTP doer.
func NewClientWithDoer(baseURL, token string, pageSize int, doer HTTPDoer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:    strings.TrimSpace(token),
		pageSize: pageSize,
		client:   doer,
		logger:   logger.With(logging.String(logging.FieldComponent, "picker")),
	}
}

// SessionItems lists every selection the picker holds for the given remote
// session, following pagination until the service reports no further pages.
func (c *Client) SessionItems(ctx context.Context, pickerSessionID string) ([]Item, error) {
	if c == nil {
		return nil, services.Wrap(services.ErrConfiguration, "picker", "list items", "picker client not configured", nil)
	}
	pickerSessionID = strings.TrimSpace(pickerSessionID)
	if pickerSessionID == "" {
		return nil, services.Wrap(services.ErrValidation, "picker", "list items", "picker session id is required", nil)
	}

	var items []Item
	pageToken := ""
	for {
		page, err := c.itemsPage(ctx, pickerSessionID, pageToken)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if strings.TrimSpace(page.NextPageToken) == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) itemsPage(ctx context.Context, pickerSessionID, pageToken string) (*itemsPage, error) {
	endpoint := fmt.Sprintf("%s/v1/sessions/%s/items", c.baseURL, url.PathEscape(pickerSessionID))
	query := url.Values{}
	if c.pageSize > 0 {
		query.Set("page_size", fmt.Sprintf("%d", c.pageSize))
	}
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	resp, err := c.get(ctx, endpoint, "list items")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page itemsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, services.Wrap(services.ErrTransient, "picker", "list items", "decode response", err)
	}
	return &page, nil
}

// Download streams the payload bytes for one picker item. The caller closes
// the returned reader.
func (c *Client) Download(ctx context.Context, pickerSessionID, itemID string) (io.ReadCloser, error) {
	if c == nil {
		return nil, services.Wrap(services.ErrConfiguration, "picker", "download", "picker client not configured", nil)
	}
	endpoint := fmt.Sprintf("%s/v1/sessions/%s/items/%s/content",
		c.baseURL, url.PathEscape(strings.TrimSpace(pickerSessionID)), url.PathEscape(strings.TrimSpace(itemID)))
	resp, err := c.get(ctx, endpoint, "download")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Ping verifies that the picker service answers at all. Used by preflight.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return services.Wrap(services.ErrConfiguration, "picker", "ping", "picker client not configured", nil)
	}
	resp, err := c.get(ctx, c.baseURL+"/v1/ping", "ping")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) get(ctx context.Context, endpoint, operation string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "picker", operation, "build request", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "picker", operation, "request failed", err)
	}
	if err := classifyStatus(operation, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// classifyStatus maps HTTP status codes onto the failure taxonomy: 401/403
// are authorization failures, 404/410 mean the source reference is gone, and
// everything else non-2xx is treated as transient.
func classifyStatus(operation string, resp *http.Response) error {
	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "picker", operation, fmt.Sprintf("service returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return services.Wrap(services.ErrExpired, "picker", operation, fmt.Sprintf("service returned %d", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrTransient, "picker", operation, fmt.Sprintf("service returned %d", resp.StatusCode), nil)
	}
}
