package aggregator

import (
	"sort"
	"time"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

// Entry is a record tagged with the provider it came from.
type Entry struct {
	Provider string          `json:"provider"`
	Record   location.Record `json:"record"`
}

// TimelineOptions filters a merged timeline. Zero values disable a filter.
type TimelineOptions struct {
	Limit     int
	Since     time.Time
	Until     time.Time
	Providers []string
}

// Timeline merges the successful outcomes of r into one list, newest first.
// Records with equal timestamps keep provider name then provider order.
func Timeline(r Result, opts TimelineOptions) []Entry {
	names := make([]string, 0, len(r))
	for name := range r {
		if includeProvider(name, opts.Providers) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entries := make([]Entry, 0)
	for _, name := range names {
		outcome := r[name]
		if !outcome.OK() {
			continue
		}
		for _, rec := range outcome.Records {
			if !opts.Since.IsZero() && rec.Timestamp.Before(opts.Since) {
				continue
			}
			if !opts.Until.IsZero() && rec.Timestamp.After(opts.Until) {
				continue
			}
			entries = append(entries, Entry{Provider: name, Record: rec})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Record.Timestamp.After(entries[j].Record.Timestamp)
	})

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries
}

func includeProvider(name string, providers []string) bool {
	if len(providers) == 0 {
		return true
	}
	for _, p := range providers {
		if p == name {
			return true
		}
	}
	return false
}
