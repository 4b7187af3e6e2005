// Package aggregator fans one request out to several location providers and
// merges their results.
//
// This package enables flaneur to:
// - Run every requested provider concurrently, each with its own timeout
// - Keep a provider failure from affecting the others
// - Report each provider's records, or its error, under the provider name
// - Merge results into a single chronological timeline
package aggregator

import (
	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

// Source is a provider the aggregator can run.
type Source struct {
	// Name is the key the provider is requested and reported under.
	Name string
	// Fetcher issues one request per page.
	Fetcher location.Fetcher
	// Normalizer is used when the request does not override it.
	Normalizer location.Normalizer
	// PageSize is used when the request leaves it at zero.
	PageSize int
}

// Request holds the run options of each requested provider, plus the
// providers whose options could not be parsed.
type Request struct {
	Runs    map[string]location.Options
	Invalid map[string]error
}

// NewRequest creates an empty Request.
func NewRequest() Request {
	return Request{
		Runs:    make(map[string]location.Options),
		Invalid: make(map[string]error),
	}
}

// Add registers the options of one provider.
func (r Request) Add(name string, opts location.Options) Request {
	r.Runs[name] = opts
	delete(r.Invalid, name)
	return r
}

// Outcome is the result of one provider run: its records or its error.
type Outcome struct {
	Records []location.Record
	Err     error
}

// OK reports whether the run succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// MarshalJSON encodes the records as an array, or a failure as
// {"error": {"kind", "provider", "status", "message"}}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Err != nil {
		return json.Marshal(struct {
			Error *location.Error `json:"error"`
		}{location.AsError("", o.Err)})
	}
	if o.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o.Records)
}

// Result maps each recognized provider to its outcome.
type Result map[string]Outcome

// Failed returns the names of the providers whose run failed.
func (r Result) Failed() []string {
	var names []string
	for name, o := range r {
		if !o.OK() {
			names = append(names, name)
		}
	}
	return names
}
