// Package facebook provides a client for the Facebook Graph API.
//
// This package enables flaneur to:
// - Page through the user's tagged places and attended events with "after" cursors
// - Enrich each page with place cover photos in a single batch request
// - Normalize places and events into location records
// - Retrieve test user tokens for integration testing
package facebook

import "github.com/goccy/go-json"

// graphError is the error object returned by the Graph API.
type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

// listResponse is a paged Graph API edge.
type listResponse struct {
	Data   []json.RawMessage `json:"data"`
	Paging *struct {
		Cursors struct {
			Before string `json:"before"`
			After  string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
	Error *graphError `json:"error"`
}

// nextCursor returns the "after" cursor when the edge has a next page.
func (r listResponse) nextCursor() string {
	if r.Paging == nil || r.Paging.Next == "" {
		return ""
	}
	return r.Paging.Cursors.After
}

// batchResponse is one entry of a batch reply. Body is a JSON document encoded as a string.
type batchResponse struct {
	Code int    `json:"code"`
	Body string `json:"body"`
}

// coverResponse is the reply of the covers sub-request, keyed by place id.
type coverResponse map[string]struct {
	Cover *struct {
		Source string `json:"source"`
	} `json:"cover"`
}

// place is the subset of a Graph place read by the normalizer.
type place struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Street    *string  `json:"street"`
	} `json:"location"`
}

// item is a tagged place or an event.
type item struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CreatedTime string  `json:"created_time"`
	StartTime   string  `json:"start_time"`
	Place       *place  `json:"place"`
	Cover       *string `json:"cover"`
}

type testUsersResponse struct {
	Data []struct {
		ID          string `json:"id"`
		AccessToken string `json:"access_token"` // #nosec G117 - JSON field for test user token
	} `json:"data"`
	Error *graphError `json:"error"`
}
