package instagram

import "github.com/gauthierbraillon/flaneur/pkg/oauth"

// OAuthConfig returns the OAuth configuration for Instagram.
// Instagram only accepts form-encoded token requests.
func OAuthConfig(baseURL, clientID, clientSecret, redirectURL string, scopes []string) oauth.Config {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return oauth.Config{ // #nosec G101 -- OAuth URLs are public API endpoints, not hardcoded credentials
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      baseURL + "/oauth/authorize/",
		TokenURL:     baseURL + "/oauth/access_token",
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
}
