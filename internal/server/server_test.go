// Package server tests document the HTTP API.
//
// Test requirements (this file serves as documentation):
// - Single-provider endpoints return a record array or a classified error
// - stream=true answers NDJSON, one line per page plus a status line
// - /social-location answers 200 with one entry per recognized provider
// - OAuth endpoints redirect to the provider and exchange the code
package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/aggregator"
	"github.com/gauthierbraillon/flaneur/internal/facebook"
	"github.com/gauthierbraillon/flaneur/internal/instagram"
	"github.com/gauthierbraillon/flaneur/internal/location"
	"github.com/gauthierbraillon/flaneur/pkg/oauth"
)

type fetchFunc func(ctx context.Context, token string, req location.PageRequest) (location.Page, error)

func (f fetchFunc) FetchPage(ctx context.Context, token string, req location.PageRequest) (location.Page, error) {
	return f(ctx, token, req)
}

var idNormalizer = location.NormalizerFunc(func(items []location.RawItem, _ bool) ([]location.Record, error) {
	records := make([]location.Record, 0, len(items))
	for _, raw := range items {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, location.UpstreamError("", 0, "bad item", err)
		}
		records = append(records, location.Record{ID: id, TaggedUsers: []location.TaggedUser{}})
	}
	return records, nil
})

// pagedFetcher serves pages in order, using the page index as cursor.
// failAt, when positive, makes the request for that page index fail.
func pagedFetcher(pages [][]string, failAt int, failure error) fetchFunc {
	return func(_ context.Context, token string, req location.PageRequest) (location.Page, error) {
		if token == "expired" {
			return location.Page{}, location.AuthError("", 400, "The access_token provided is invalid.")
		}
		i := 0
		if req.Cursor != "" {
			i, _ = strconv.Atoi(req.Cursor)
		}
		if failAt > 0 && i == failAt {
			return location.Page{}, failure
		}
		page := location.Page{}
		for _, id := range pages[i] {
			page.Items = append(page.Items, location.RawItem(`"`+id+`"`))
		}
		if i+1 < len(pages) {
			page.NextCursor = strconv.Itoa(i + 1)
		}
		return page, nil
	}
}

func newTestAPI(t *testing.T, failAt int, opts ...Option) *httptest.Server {
	t.Helper()
	pages := [][]string{{"m1", "m2"}, {"m3", "m4"}, {"m5"}}
	failure := location.UpstreamError("", 500, "internal error", nil)
	agg := aggregator.New([]aggregator.Source{
		{Name: instagram.Name, Fetcher: pagedFetcher(pages, failAt, failure), Normalizer: idNormalizer, PageSize: 2},
		{Name: facebook.Name, Fetcher: pagedFetcher(pages, failAt, failure), Normalizer: idNormalizer, PageSize: 2},
		{Name: facebook.EventsName, Fetcher: pagedFetcher([][]string{{}}, 0, nil), Normalizer: idNormalizer, PageSize: 2},
	})
	api := httptest.NewServer(New(agg, opts...).Handler())
	t.Cleanup(api.Close)
	return api
}

func get(t *testing.T, client *http.Client, rawURL string) (*http.Response, string) {
	t.Helper()
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var b strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	return resp, strings.TrimSuffix(b.String(), "\n")
}

type errorResponse struct {
	Error struct {
		Kind     string `json:"kind"`
		Provider string `json:"provider"`
		Status   int    `json:"status"`
		Message  string `json:"message"`
	} `json:"error"`
}

func TestAC700_Healthz(t *testing.T) {
	api := newTestAPI(t, 0)

	resp, body := get(t, nil, api.URL+"/healthz")

	if resp.StatusCode != http.StatusOK || body != "ok" {
		t.Errorf("expected 200 ok, got %d %q", resp.StatusCode, body)
	}
}

func TestAC700_MetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, 0)
	get(t, nil, api.URL+"/instagram/photos?token=t")

	resp, body := get(t, nil, api.URL+"/metrics")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "flaneur_http_requests_total") {
		t.Error("metrics should expose HTTP request counters")
	}
	if !strings.Contains(body, `route="/instagram/photos"`) {
		t.Error("HTTP metrics should be labeled by route pattern")
	}
}

func TestAC701_Provider_CollectsAllPages(t *testing.T) {
	api := newTestAPI(t, 0)

	for _, path := range []string{"/instagram/photos", "/facebook/locations"} {
		t.Run(path, func(t *testing.T) {
			resp, body := get(t, nil, api.URL+path+"?token=t")

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
			}
			var records []location.Record
			if err := json.Unmarshal([]byte(body), &records); err != nil {
				t.Fatalf("expected a record array: %v", err)
			}
			if len(records) != 5 || records[0].ID != "m1" || records[4].ID != "m5" {
				t.Errorf("expected m1..m5 in order, got %+v", records)
			}
		})
	}
}

func TestAC701_Provider_HonorsCursorAndMaxItems(t *testing.T) {
	api := newTestAPI(t, 0)

	_, body := get(t, nil, api.URL+"/instagram/photos?token=t&maxID=1&maxItems=1")

	var records []location.Record
	if err := json.Unmarshal([]byte(body), &records); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(records) != 1 || records[0].ID != "m3" {
		t.Errorf("expected only m3, got %+v", records)
	}
}

func TestAC701_Provider_EmptyFeedIsEmptyArray(t *testing.T) {
	api := newTestAPI(t, 0)

	_, body := get(t, nil, api.URL+"/facebook/events?token=t")

	if body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestAC702_Provider_ErrorStatuses(t *testing.T) {
	api := newTestAPI(t, 1)

	tests := []struct {
		name     string
		query    string
		status   int
		kind     string
		contains string
	}{
		{"missing token", "", http.StatusBadRequest, "", "No token provided"},
		{"rejected token", "?token=expired", http.StatusUnauthorized, "auth", ""},
		{"bad integer", "?token=t&batchSize=abc", http.StatusBadRequest, "invalid", ""},
		{"batch too large", "?token=t&batchSize=501", http.StatusBadRequest, "invalid", ""},
		{"upstream failure", "?token=t", http.StatusBadGateway, "upstream", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := get(t, nil, api.URL+"/instagram/photos"+tc.query)

			if resp.StatusCode != tc.status {
				t.Errorf("expected status %d, got %d: %s", tc.status, resp.StatusCode, body)
			}
			if tc.contains != "" && !strings.Contains(body, tc.contains) {
				t.Errorf("expected body to contain %q, got %s", tc.contains, body)
			}
			if tc.kind == "" {
				return
			}
			var er errorResponse
			if err := json.Unmarshal([]byte(body), &er); err != nil {
				t.Fatalf("expected an error object: %v", err)
			}
			if er.Error.Kind != tc.kind || er.Error.Provider != instagram.Name {
				t.Errorf("expected %s error from instagram, got %+v", tc.kind, er.Error)
			}
		})
	}
}

func TestAC703_Stream_WritesOneLinePerPage(t *testing.T) {
	api := newTestAPI(t, 0)

	resp, body := get(t, nil, api.URL+"/instagram/photos?token=t&stream=true")

	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("expected NDJSON content type, got %q", ct)
	}
	lines := strings.Split(body, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 3 page lines and a status line, got %d:\n%s", len(lines), body)
	}
	if lines[0] != `[{"record_id":"m1","timedate":"0001-01-01T00:00:00Z","usersTagged":[]},{"record_id":"m2","timedate":"0001-01-01T00:00:00Z","usersTagged":[]}]` {
		t.Errorf("unexpected first page %s", lines[0])
	}
	if lines[3] != `{"done":true,"pages":3,"records":5}` {
		t.Errorf("unexpected status line %s", lines[3])
	}
}

func TestAC704_Stream_ReportsFailureAfterFirstPage(t *testing.T) {
	api := newTestAPI(t, 2)

	resp, body := get(t, nil, api.URL+"/instagram/photos?token=t&stream=true")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status is committed with the first page, got %d", resp.StatusCode)
	}
	lines := strings.Split(body, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 2 page lines and a status line, got:\n%s", body)
	}
	var done streamDone
	if err := json.Unmarshal([]byte(lines[2]), &done); err != nil {
		t.Fatalf("status line: %v", err)
	}
	if done.Done || done.Pages != 2 || done.Error == nil || done.Error.Kind != location.KindUpstream {
		t.Errorf("expected an upstream failure after 2 pages, got %+v", done)
	}
}

func TestAC704_Stream_FailureBeforeFirstPageIsPlainError(t *testing.T) {
	api := newTestAPI(t, 0)

	resp, body := get(t, nil, api.URL+"/instagram/photos?token=expired&stream=true")

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d: %s", resp.StatusCode, body)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "ndjson") {
		t.Error("no NDJSON response expected before the first page")
	}
}

func TestAC705_SocialLocation_AggregatesProviders(t *testing.T) {
	api := newTestAPI(t, 0)
	q := url.Values{}
	q.Set(instagram.Name, `{"token":"t","onlyWithLocation":false,"maxItems":3}`)
	q.Set(facebook.Name, `{"token":"expired","onlyWithLocation":false}`)
	q.Set(facebook.EventsName, `{"token":"t"}`)
	q.Set("myspace", `{"token":"t","onlyWithLocation":false}`)

	resp, body := get(t, nil, api.URL+"/social-location?"+q.Encode())

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 even with failing providers, got %d", resp.StatusCode)
	}
	var result map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result) != 3 {
		t.Errorf("expected 3 providers (unknown ignored), got %v", body)
	}
	var records []location.Record
	if err := json.Unmarshal(result[instagram.Name], &records); err != nil || len(records) != 3 {
		t.Errorf("instagram should have 3 records, got %s", result[instagram.Name])
	}
	var authFailure errorResponse
	if err := json.Unmarshal(result[facebook.Name], &authFailure); err != nil || authFailure.Error.Kind != "auth" {
		t.Errorf("facebook should carry an auth error, got %s", result[facebook.Name])
	}
	var invalid errorResponse
	if err := json.Unmarshal(result[facebook.EventsName], &invalid); err != nil || invalid.Error.Kind != "invalid" {
		t.Errorf("facebook_events should carry an invalid options error, got %s", result[facebook.EventsName])
	}
}

func TestAC705_SocialLocation_NoProviders(t *testing.T) {
	api := newTestAPI(t, 0)

	_, body := get(t, nil, api.URL+"/social-location")

	if body != "{}" {
		t.Errorf("expected {}, got %s", body)
	}
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func testFlow(tokenURL string) *oauth.Flow {
	return oauth.NewFlow(oauth.Config{
		ClientID:     "client-1",
		ClientSecret: "secret",
		AuthURL:      "https://provider.example.com/oauth/authorize/",
		TokenURL:     tokenURL,
		RedirectURL:  "http://localhost:8080/instagram/authorize",
		Scopes:       []string{"basic", "public_content"},
	})
}

func TestAC706_Connect_RedirectsToProvider(t *testing.T) {
	api := newTestAPI(t, 0, WithInstagramOAuth(testFlow("http://unused")))

	resp, _ := get(t, noRedirect(), api.URL+"/instagram/connect")

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("bad Location: %v", err)
	}
	q := loc.Query()
	if q.Get("client_id") != "client-1" || q.Get("response_type") != "code" || q.Get("scope") != "basic public_content" {
		t.Errorf("unexpected authorization URL %s", loc)
	}
	var state string
	for _, c := range resp.Cookies() {
		if c.Name == stateCookie {
			state = c.Value
		}
	}
	if state == "" || state != q.Get("state") {
		t.Errorf("state cookie %q should match the URL state %q", state, q.Get("state"))
	}
}

func TestAC706_Connect_NotConfigured(t *testing.T) {
	api := newTestAPI(t, 0)

	resp, _ := get(t, noRedirect(), api.URL+"/facebook/connect")

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestAC707_Authorize_ExchangesCode(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if r.PostForm.Get("code") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_message":"Matching code was not found or was already used."}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123"}`))
	}))
	t.Cleanup(tokenServer.Close)
	api := newTestAPI(t, 0, WithInstagramOAuth(testFlow(tokenServer.URL)))

	tests := []struct {
		name     string
		query    string
		status   int
		contains string
	}{
		{"valid code", "?code=good", http.StatusOK, "tok-123"},
		{"missing code", "", http.StatusBadRequest, "Invalid arguments."},
		{"denied", "?error=access_denied&error_description=The+user+denied+your+request.", http.StatusBadRequest, "denied your request"},
		{"rejected code", "?code=bad", http.StatusBadGateway, "Matching code was not found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := get(t, nil, api.URL+"/instagram/authorize"+tc.query)

			if resp.StatusCode != tc.status {
				t.Errorf("expected %d, got %d: %s", tc.status, resp.StatusCode, body)
			}
			if !strings.Contains(body, tc.contains) {
				t.Errorf("expected body to contain %q, got %q", tc.contains, body)
			}
		})
	}
}

func TestAC707_Authorize_RejectsStateMismatch(t *testing.T) {
	api := newTestAPI(t, 0, WithInstagramOAuth(testFlow("http://unused")))
	req, err := http.NewRequest(http.MethodGet, api.URL+"/instagram/authorize?code=good&state=forged", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "expected"})

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 on state mismatch, got %d", resp.StatusCode)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv := New(aggregator.New(nil))
	ln := httptest.NewUnstartedServer(nil).Listener
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	resp, body := get(t, nil, "http://"+ln.Addr().String()+"/healthz")
	if resp.StatusCode != http.StatusOK || body != "ok" {
		t.Errorf("expected healthz ok, got %d %q", resp.StatusCode, body)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
