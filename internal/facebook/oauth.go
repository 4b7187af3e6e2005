package facebook

import (
	"strings"

	"github.com/gauthierbraillon/flaneur/pkg/oauth"
)

const defaultDialogURL = "https://www.facebook.com"

// OAuthConfig returns the Facebook Login configuration. Empty URLs and
// version fall back to the public Facebook hosts and the default Graph version.
func OAuthConfig(dialogURL, graphURL, version, clientID, clientSecret, redirectURL string, scopes []string) oauth.Config {
	if dialogURL == "" {
		dialogURL = defaultDialogURL
	}
	if graphURL == "" {
		graphURL = defaultGraphURL
	}
	if version == "" {
		version = defaultAPIVersion
	}
	version = strings.Trim(version, "/")

	return oauth.Config{ // #nosec G101 -- OAuth URLs are public API endpoints, not hardcoded credentials
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		AuthURL:        strings.TrimRight(dialogURL, "/") + "/" + version + "/dialog/oauth",
		TokenURL:       strings.TrimRight(graphURL, "/") + "/" + version + "/oauth/access_token",
		RedirectURL:    redirectURL,
		Scopes:         scopes,
		ScopeSeparator: ",",
	}
}
