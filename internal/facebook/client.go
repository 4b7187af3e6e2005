package facebook

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
	// Name identifies the tagged places feed in aggregate results.
	Name = "facebook"
	// EventsName identifies the attended events feed in aggregate results.
	EventsName = "facebook_events"

	defaultGraphURL   = "https://graph.facebook.com"
	defaultAPIVersion = "v2.12"

	taggedPlacesPath = "/me/tagged_places"
	eventsPath       = "/me/events"
	eventsFields     = "place{location, name},start_time,name"

	// DefaultPageSize is the number of items requested per page.
	DefaultPageSize = 25
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

// WithGraphURL sets a custom Graph API host (useful for testing).
func WithGraphURL(url string) ClientOption {
	return func(c *Client) {
		c.graphURL = strings.TrimRight(url, "/")
	}
}

// WithAPIVersion sets the Graph API version, e.g. "v2.12".
func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = strings.Trim(version, "/")
	}
}

// Client is a Facebook Graph API client. The user token is passed with every request.
type Client struct {
	graphURL   string
	version    string
	httpClient HTTPClient
}

// NewClient creates a new Graph API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		graphURL:   defaultGraphURL,
		version:    defaultAPIVersion,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// TaggedPlaces returns a fetcher for the user's tagged places.
func (c *Client) TaggedPlaces() location.Fetcher {
	return &edge{client: c, name: Name, path: taggedPlacesPath}
}

// Events returns a fetcher for the events the user attends.
func (c *Client) Events() location.Fetcher {
	params := url.Values{}
	params.Set("type", "attending")
	params.Set("fields", eventsFields)
	return &edge{client: c, name: EventsName, path: eventsPath, params: params}
}

// edge pages through one Graph API edge of the current user.
type edge struct {
	client *Client
	name   string
	path   string
	params url.Values
}

// FetchPage retrieves one page of the edge. With req.WithCover the page is
// fetched together with the cover photo of every place in a single batch request.
func (e *edge) FetchPage(ctx context.Context, token string, req location.PageRequest) (location.Page, error) {
	if token == "" {
		return location.Page{}, location.AuthError(e.name, 0, "no access token provided")
	}

	q := e.query(req)
	if req.WithCover {
		return e.client.fetchWithCovers(ctx, e.name, token, e.path, q)
	}

	q.Set("access_token", token)
	body, status, err := e.client.do(ctx, e.name, http.MethodGet, e.client.endpoint(e.path)+"?"+q.Encode(), nil)
	if err != nil {
		return location.Page{}, err
	}
	return parseList(e.name, status, body)
}

// query builds the edge parameters for one page, without the access token.
func (e *edge) query(req location.PageRequest) url.Values {
	q := url.Values{}
	for k, v := range e.params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("limit", strconv.Itoa(req.PageSize))
	if req.Cursor != "" {
		q.Set("after", req.Cursor)
	}
	return q
}

// TestUserToken returns the access token of one of the app's test users,
// or an empty string when the user is not found.
func (c *Client) TestUserToken(ctx context.Context, appID, appToken, testUserID string) (string, error) {
	q := url.Values{}
	q.Set("access_token", appToken)
	body, status, err := c.do(ctx, Name, http.MethodGet, c.endpoint("/"+appID+"/accounts/test-users")+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	var response testUsersResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", location.UpstreamError(Name, status, "failed to parse test users response", err)
	}
	if response.Error != nil || status != http.StatusOK {
		return "", graphFailure(Name, status, response.Error)
	}

	for _, user := range response.Data {
		if user.ID == testUserID {
			return user.AccessToken, nil
		}
	}
	return "", nil
}

func (c *Client) endpoint(path string) string {
	return c.graphURL + "/" + c.version + path
}

func (c *Client) do(ctx context.Context, name, method, url string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, location.NetworkError(name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, location.NetworkError(name, fmt.Errorf("failed to read response: %w", err))
	}

	return data, resp.StatusCode, nil
}

// parseList decodes a paged edge response.
func parseList(name string, status int, body []byte) (location.Page, error) {
	var response listResponse
	if err := json.Unmarshal(body, &response); err != nil {
		if status != http.StatusOK {
			return location.Page{}, graphFailure(name, status, nil)
		}
		return location.Page{}, location.UpstreamError(name, status, "failed to parse Graph API response", err)
	}
	if response.Error != nil || status != http.StatusOK {
		return location.Page{}, graphFailure(name, status, response.Error)
	}

	items := make([]location.RawItem, 0, len(response.Data))
	for _, raw := range response.Data {
		items = append(items, location.RawItem(raw))
	}
	return location.Page{Items: items, NextCursor: response.nextCursor()}, nil
}

// graphFailure classifies a Graph API error.
func graphFailure(name string, status int, gErr *graphError) error {
	if gErr == nil {
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return location.AuthError(name, status, "Facebook API authentication failed - please reconnect to get a new token")
		default:
			return location.UpstreamError(name, status, fmt.Sprintf("Facebook API error (status %d)", status), nil)
		}
	}

	if isAuthFailure(status, gErr) {
		return location.AuthError(name, status, gErr.Message)
	}
	if status == 0 || status == http.StatusOK {
		status = http.StatusBadGateway
	}
	return location.UpstreamError(name, status, fmt.Sprintf("%s (%s, code %d)", gErr.Message, gErr.Type, gErr.Code), nil)
}

// isAuthFailure reports whether the Graph error means the token is missing,
// expired or lacks permission.
func isAuthFailure(status int, gErr *graphError) bool {
	switch gErr.Code {
	case 102, 190:
		return true
	case 4, 17, 32, 613:
		// throttling, also reported as OAuthException
		return false
	}
	return gErr.Type == "OAuthException" || status == http.StatusUnauthorized
}
