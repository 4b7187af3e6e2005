package instagram

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

// Normalizer is the default Instagram normalizer.
var Normalizer location.Normalizer = location.NormalizerFunc(Normalize)

// Normalize maps Instagram media to location records. The place is kept even
// when the location has no coordinates; such media are dropped only when
// onlyWithLocation is set.
func Normalize(items []location.RawItem, onlyWithLocation bool) ([]location.Record, error) {
	records := make([]location.Record, 0, len(items))
	for i, raw := range items {
		var m media
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, location.UpstreamError(Name, 0, fmt.Sprintf("failed to parse media item %d", i), err)
		}

		rec := location.Record{
			ID:          m.ID,
			Timestamp:   parseCreatedTime(m.CreatedTime),
			TaggedUsers: make([]location.TaggedUser, 0, len(m.UsersInPhoto)),
		}

		if m.Location != nil {
			rec.Place = &location.Place{
				ID:      string(m.Location.ID),
				Name:    m.Location.Name,
				Address: m.Location.StreetAddress,
			}
			if m.Location.Latitude != nil && m.Location.Longitude != nil {
				rec.Latitude = m.Location.Latitude
				rec.Longitude = m.Location.Longitude
			}
		}
		if onlyWithLocation && !rec.HasLocation() {
			continue
		}
		if len(m.Images) > 0 && !bytes.Equal(m.Images, []byte("null")) {
			rec.Images = m.Images
		}

		for _, u := range m.UsersInPhoto {
			rec.TaggedUsers = append(rec.TaggedUsers, location.TaggedUser{
				ID:       u.User.ID,
				Name:     u.User.Username,
				FullName: u.User.FullName,
				Picture:  u.User.ProfilePicture,
			})
		}

		records = append(records, rec)
	}
	return records, nil
}

// parseCreatedTime parses Instagram's unix-seconds timestamp string.
func parseCreatedTime(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// flexibleID accepts both numeric and string JSON ids.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	*id = flexibleID(data)
	return nil
}
