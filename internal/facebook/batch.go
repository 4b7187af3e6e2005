package facebook

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/location"
	"github.com/gauthierbraillon/flaneur/internal/logging"
)

const coversRelativeURL = "?ids={result=locations:$.data.*.place.id}&fields=cover{source}"

type batchRequest struct {
	Method                string `json:"method"`
	RelativeURL           string `json:"relative_url"`
	Name                  string `json:"name,omitempty"`
	OmitResponseOnSuccess *bool  `json:"omit_response_on_success,omitempty"`
}

// fetchWithCovers fetches one page of path and the cover photo of every
// place on it in a single batch request. A failed cover lookup keeps the
// items without cover.
func (c *Client) fetchWithCovers(ctx context.Context, name, token, path string, q url.Values) (location.Page, error) {
	keep := false
	batch, err := json.Marshal([]batchRequest{
		{
			Method:                http.MethodGet,
			RelativeURL:           c.version + path + "?" + q.Encode(),
			Name:                  "locations",
			OmitResponseOnSuccess: &keep,
		},
		{
			Method:      http.MethodGet,
			RelativeURL: c.version + "/" + coversRelativeURL,
		},
	})
	if err != nil {
		return location.Page{}, location.UpstreamError(name, 0, "failed to encode batch request", err)
	}

	form := url.Values{}
	form.Set("access_token", token)
	form.Set("include_headers", "false")
	form.Set("batch", string(batch))

	body, status, err := c.do(ctx, name, http.MethodPost, c.graphURL+"/", strings.NewReader(form.Encode()))
	if err != nil {
		return location.Page{}, err
	}

	var responses []*batchResponse
	if err := json.Unmarshal(body, &responses); err != nil {
		// a rejected token fails the whole batch with a plain error object
		return parseList(name, status, body)
	}
	if status != http.StatusOK {
		return location.Page{}, graphFailure(name, status, nil)
	}
	if len(responses) == 0 || responses[0] == nil {
		return location.Page{}, location.UpstreamError(name, status, "batch response has no locations result", nil)
	}

	page, err := parseList(name, responses[0].Code, []byte(responses[0].Body))
	if err != nil {
		return location.Page{}, err
	}

	var coverResult *batchResponse
	if len(responses) > 1 {
		coverResult = responses[1]
	}
	covers, err := parseCovers(coverResult)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("provider", name).Msg("cover enrichment failed, keeping items without cover")
		return page, nil
	}

	for i, raw := range page.Items {
		page.Items[i] = withCover(raw, covers)
	}
	return page, nil
}

// parseCovers maps place ids to cover source URLs.
func parseCovers(res *batchResponse) (map[string]string, error) {
	if res == nil {
		return nil, errors.New("no covers result")
	}

	var failure struct {
		Error *graphError `json:"error"`
	}
	if err := json.Unmarshal([]byte(res.Body), &failure); err != nil {
		return nil, err
	}
	if failure.Error != nil {
		return nil, errors.New(failure.Error.Message)
	}
	if res.Code != http.StatusOK {
		return nil, errors.New(http.StatusText(res.Code))
	}

	var response coverResponse
	if err := json.Unmarshal([]byte(res.Body), &response); err != nil {
		return nil, err
	}

	covers := make(map[string]string, len(response))
	for id, p := range response {
		if p.Cover != nil && p.Cover.Source != "" {
			covers[id] = p.Cover.Source
		}
	}
	return covers, nil
}

// withCover sets the "cover" field of an item to its place cover URL, or null.
// Items that are not JSON objects are returned unchanged.
func withCover(raw location.RawItem, covers map[string]string) location.RawItem {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return raw
	}

	var it item
	_ = json.Unmarshal(raw, &it)

	cover := json.RawMessage("null")
	if it.Place != nil {
		if src, ok := covers[it.Place.ID]; ok {
			if encoded, err := json.Marshal(src); err == nil {
				cover = encoded
			}
		}
	}
	fields["cover"] = cover

	out, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return out
}
