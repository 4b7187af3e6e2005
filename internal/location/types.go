// Package location defines the common location record shape shared by every provider.
//
// This package enables flaneur to:
// - Describe one page of provider data independently of the provider
// - Normalize Instagram and Facebook items into a single Record type
// - Classify provider failures (auth, upstream, network)
package location

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// RawItem is one undecoded item from a provider page.
type RawItem = json.RawMessage

// PageRequest asks a provider for a single page.
type PageRequest struct {
	Cursor    string
	PageSize  int
	WithCover bool
}

// Page is one batch of items returned by a single provider call.
// An empty NextCursor means there are no more pages.
type Page struct {
	Items      []RawItem
	NextCursor string
}

// Fetcher issues one provider request per page.
type Fetcher interface {
	FetchPage(ctx context.Context, token string, req PageRequest) (Page, error)
}

// Record is the normalized location record.
type Record struct {
	ID          string       `json:"record_id"`
	Timestamp   time.Time    `json:"timedate"`
	Latitude    *float64     `json:"latitude,omitempty"`
	Longitude   *float64     `json:"longitude,omitempty"`
	Place       *Place       `json:"info,omitempty"`
	TaggedUsers []TaggedUser `json:"usersTagged"`
	Cover       string       `json:"cover,omitempty"`
	// Images is the provider's image set, passed through undecoded.
	Images json.RawMessage `json:"images,omitempty"`
}

// HasLocation reports whether both coordinates are present.
func (r Record) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Place describes where a record happened.
type Place struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Address *string `json:"address"`
}

// TaggedUser is a user tagged in a record.
type TaggedUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

// Options configures one pagination run against a provider.
type Options struct {
	// Token is the provider access token. Required.
	Token string
	// Cursor is the starting position; empty starts from the newest item.
	Cursor string
	// PageSize is the number of items requested per page. Zero uses the provider default.
	PageSize int
	// MaxItems caps the number of records produced across all pages. Zero means no cap.
	MaxItems int
	// OnlyWithLocation drops records without coordinates.
	OnlyWithLocation bool
	// WithCover asks providers that support it to enrich items with a cover photo.
	WithCover bool
	// Normalizer replaces the provider default when set.
	Normalizer Normalizer
}

// Summary is the terminal status of a streaming run.
type Summary struct {
	Pages   int `json:"pages"`
	Records int `json:"records"`
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}
