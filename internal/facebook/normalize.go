package facebook

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

// graphTimeLayout is the timestamp format used by the Graph API.
const graphTimeLayout = "2006-01-02T15:04:05-0700"

var (
	// PlacesNormalizer is the default normalizer for tagged places.
	PlacesNormalizer location.Normalizer = location.NormalizerFunc(NormalizePlaces)
	// EventsNormalizer is the default normalizer for attended events.
	EventsNormalizer location.Normalizer = location.NormalizerFunc(NormalizeEvents)
)

// NormalizePlaces maps tagged places to records, timestamped by created_time.
func NormalizePlaces(items []location.RawItem, onlyWithLocation bool) ([]location.Record, error) {
	return normalize(Name, items, onlyWithLocation, func(it item) string { return it.CreatedTime })
}

// NormalizeEvents maps events to records, timestamped by start_time.
func NormalizeEvents(items []location.RawItem, onlyWithLocation bool) ([]location.Record, error) {
	return normalize(EventsName, items, onlyWithLocation, func(it item) string { return it.StartTime })
}

func normalize(name string, items []location.RawItem, onlyWithLocation bool, timestamp func(item) string) ([]location.Record, error) {
	records := make([]location.Record, 0, len(items))
	for i, raw := range items {
		var it item
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, location.UpstreamError(name, 0, fmt.Sprintf("failed to parse item %d", i), err)
		}

		rec := location.Record{
			ID:          it.ID,
			Timestamp:   parseGraphTime(timestamp(it)),
			TaggedUsers: []location.TaggedUser{},
		}
		if it.Cover != nil {
			rec.Cover = *it.Cover
		}

		if p := it.Place; p != nil {
			rec.Place = &location.Place{ID: p.ID, Name: p.Name}
			if p.Location != nil {
				rec.Latitude = p.Location.Latitude
				rec.Longitude = p.Location.Longitude
				rec.Place.Address = p.Location.Street
			}
		}

		if onlyWithLocation && !rec.HasLocation() {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseGraphTime(s string) time.Time {
	t, err := time.Parse(graphTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
