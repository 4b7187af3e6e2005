// Package instagram provides a client for the Instagram API recent media feed.
//
// This package enables flaneur to:
// - Page through the authenticated user's recent media with max_id cursors
// - Normalize media into location records (coordinates, place, tagged users)
// - Build the OAuth configuration used by the connect/authorize endpoints
package instagram

import "github.com/goccy/go-json"

// media is the subset of an Instagram media object that flaneur reads.
type media struct {
	ID           string          `json:"id"`
	CreatedTime  string          `json:"created_time"`
	Location     *mediaLocation  `json:"location"`
	Images       json.RawMessage `json:"images"`
	UsersInPhoto []struct {
		User struct {
			ID             string `json:"id"`
			Username       string `json:"username"`
			FullName       string `json:"full_name"`
			ProfilePicture string `json:"profile_picture"`
		} `json:"user"`
	} `json:"users_in_photo"`
}

type mediaLocation struct {
	ID            flexibleID `json:"id"`
	Name          string     `json:"name"`
	Latitude      *float64   `json:"latitude"`
	Longitude     *float64   `json:"longitude"`
	StreetAddress *string    `json:"street_address"`
}
