package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

const (
	// Name identifies the provider in aggregate results.
	Name = "instagram"

	defaultBaseURL  = "https://api.instagram.com"
	recentMediaPath = "/v1/users/self/media/recent"

	// DefaultPageSize is the number of media requested per page.
	DefaultPageSize = 20
)

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// Client fetches pages of the authenticated user's recent media.
// It holds no credential: the access token is passed with every page request.
type Client struct {
	baseURL    string
	httpClient HTTPClient
}

// NewClient creates a new Instagram API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchPage retrieves one page of recent media. The cursor is Instagram's max_id.
func (c *Client) FetchPage(ctx context.Context, token string, req location.PageRequest) (location.Page, error) {
	if token == "" {
		return location.Page{}, location.AuthError(Name, 0, "no access token provided")
	}

	q := url.Values{}
	q.Set("access_token", token)
	q.Set("count", strconv.Itoa(req.PageSize))
	if req.Cursor != "" {
		q.Set("max_id", req.Cursor)
	}

	body, status, err := c.doRequest(ctx, c.baseURL+recentMediaPath+"?"+q.Encode())
	if err != nil {
		return location.Page{}, err
	}

	var response mediaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		if status != http.StatusOK {
			return location.Page{}, c.handleAPIError(status, metaResponse{})
		}
		return location.Page{}, location.UpstreamError(Name, status, "failed to parse media response", err)
	}

	if status != http.StatusOK || (response.Meta.Code != 0 && response.Meta.Code != http.StatusOK) {
		return location.Page{}, c.handleAPIError(status, response.Meta)
	}

	items := response.Data
	if items == nil {
		items = []location.RawItem{}
	}

	return location.Page{
		Items:      items,
		NextCursor: response.Pagination.NextMaxID,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, location.NetworkError(Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, location.NetworkError(Name, fmt.Errorf("failed to read response: %w", err))
	}

	return body, resp.StatusCode, nil
}

func (c *Client) handleAPIError(statusCode int, meta metaResponse) error {
	code := meta.Code
	if code == 0 {
		code = statusCode
	}
	message := meta.ErrorMessage

	if strings.HasPrefix(meta.ErrorType, "OAuth") || code == http.StatusUnauthorized || code == http.StatusForbidden {
		if message == "" {
			message = "Instagram API authentication failed - please reconnect to get a new token"
		}
		return location.AuthError(Name, code, message)
	}

	if message == "" {
		switch code {
		case http.StatusTooManyRequests:
			message = "Instagram API rate limit exceeded"
		case http.StatusServiceUnavailable:
			message = "Instagram API temporarily unavailable"
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
			message = "Instagram API server error"
		default:
			message = fmt.Sprintf("Instagram API error (status %d)", code)
		}
	}
	return location.UpstreamError(Name, code, message, nil)
}

// API response types (private - implementation detail)

type metaResponse struct {
	Code         int    `json:"code"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

type mediaResponse struct {
	Meta       metaResponse       `json:"meta"`
	Data       []location.RawItem `json:"data"`
	Pagination struct {
		NextMaxID string `json:"next_max_id"`
		NextURL   string `json:"next_url"`
	} `json:"pagination"`
}
