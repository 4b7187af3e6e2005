// Package paginator walks a provider's paged feed.
//
// A run requests pages one after the other, following the cursor returned by
// each page, until the provider reports the last page or the item cap is hit.
// Collect buffers every normalized record; Stream pushes each normalized page
// to a Sink as soon as it is available.
package paginator

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

// ErrNoNormalizer is returned when a run has neither an override nor a default normalizer.
var ErrNoNormalizer = errors.New("no normalizer configured")

// Sink receives one serialized JSON array of records per fetched page.
type Sink interface {
	WritePage(ctx context.Context, page []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, page []byte) error

// WritePage calls f.
func (f SinkFunc) WritePage(ctx context.Context, page []byte) error {
	return f(ctx, page)
}

// Collect runs the pagination loop and returns every record, in provider order.
// The result is never nil.
func Collect(ctx context.Context, fetcher location.Fetcher, normalizer location.Normalizer, opts location.Options) ([]location.Record, error) {
	records := make([]location.Record, 0)
	_, err := run(ctx, fetcher, normalizer, opts, func(page []location.Record) error {
		records = append(records, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Stream runs the pagination loop and pushes each normalized page to sink,
// including pages that normalize to zero records. The returned Summary is the
// terminal status: it is only returned after the final page was delivered.
func Stream(ctx context.Context, fetcher location.Fetcher, normalizer location.Normalizer, opts location.Options, sink Sink) (location.Summary, error) {
	return run(ctx, fetcher, normalizer, opts, func(page []location.Record) error {
		payload, err := json.Marshal(page)
		if err != nil {
			return fmt.Errorf("failed to encode page: %w", err)
		}
		if err := sink.WritePage(ctx, payload); err != nil {
			return fmt.Errorf("sink rejected page: %w", err)
		}
		return nil
	})
}

// run is the loop shared by Collect and Stream. State is {cursor, emitted};
// every request is built fresh from it.
func run(ctx context.Context, fetcher location.Fetcher, normalizer location.Normalizer, opts location.Options, emit func([]location.Record) error) (location.Summary, error) {
	var summary location.Summary

	if opts.Token == "" {
		return summary, location.AuthError("", 0, "no access token provided")
	}
	if opts.Normalizer != nil {
		normalizer = opts.Normalizer
	}
	if normalizer == nil {
		return summary, ErrNoNormalizer
	}
	if opts.PageSize <= 0 {
		return summary, fmt.Errorf("page size must be positive, got %d", opts.PageSize)
	}

	cursor := opts.Cursor
	emitted := 0

	for {
		size := opts.PageSize
		if opts.MaxItems > 0 && emitted+size > opts.MaxItems {
			size = opts.MaxItems - emitted
		}
		if size <= 0 {
			return summary, nil
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		page, err := fetcher.FetchPage(ctx, opts.Token, location.PageRequest{
			Cursor:    cursor,
			PageSize:  size,
			WithCover: opts.WithCover,
		})
		if err != nil {
			return summary, err
		}
		summary.Pages++

		records, err := normalizer.Normalize(page.Items, opts.OnlyWithLocation)
		if err != nil {
			return summary, err
		}
		if records == nil {
			records = []location.Record{}
		}
		if opts.MaxItems > 0 && len(records) > opts.MaxItems-emitted {
			records = records[:opts.MaxItems-emitted]
		}

		if err := emit(records); err != nil {
			return summary, err
		}
		emitted += len(records)
		summary.Records = emitted

		if opts.MaxItems > 0 && emitted >= opts.MaxItems {
			return summary, nil
		}
		if page.NextCursor == "" {
			return summary, nil
		}
		cursor = page.NextCursor
	}
}
