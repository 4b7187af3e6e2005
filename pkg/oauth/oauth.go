// Package oauth provides OAuth 2.0 utilities for flaneur.
//
// Tokens are never stored: they are returned to the caller, who passes them
// back with every fetch request.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrMissingCode  = errors.New("authorization code is required")
	ErrInvalidState = errors.New("state mismatch")
)

type Config struct {
	ClientID     string
	ClientSecret string // #nosec G117 - JSON field for OAuth config, not an exposed secret
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string

	// ScopeSeparator joins Scopes in the authorization URL. Default: a space.
	ScopeSeparator string
}

// Validate reports the first missing field required for the authorization code flow.
func (c Config) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("oauth: client ID is required")
	case c.ClientSecret == "":
		return errors.New("oauth: client secret is required")
	case c.TokenURL == "":
		return errors.New("oauth: token URL is required")
	case c.RedirectURL == "":
		return errors.New("oauth: redirect URL is required")
	case len(c.Scopes) == 0:
		return errors.New("oauth: at least one scope is required")
	}
	return nil
}

type Token struct {
	AccessToken string `json:"access_token"` // #nosec G117 - JSON field for OAuth token, not an exposed secret
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

type Flow struct {
	config     Config
	code       oauth2.Config
	app        clientcredentials.Config
	httpClient *http.Client
}

type FlowOption func(*Flow)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(client *http.Client) FlowOption {
	return func(f *Flow) { f.httpClient = client }
}

// NewFlow builds a flow that sends client credentials in the request body,
// which is what both the Instagram and the Facebook token endpoints expect.
func NewFlow(config Config, opts ...FlowOption) *Flow {
	f := &Flow{
		config: config,
		code: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: config.RedirectURL,
		},
		app: clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AuthURL builds the provider authorization URL. An empty state is omitted.
func (f *Flow) AuthURL(state string) string {
	var opts []oauth2.AuthCodeOption
	if len(f.config.Scopes) > 0 {
		sep := f.config.ScopeSeparator
		if sep == "" {
			sep = " "
		}
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(f.config.Scopes, sep)))
	}
	return f.code.AuthCodeURL(state, opts...)
}

// GenerateAuthURL builds the authorization URL with a fresh random state.
func (f *Flow) GenerateAuthURL() (authURL, state string) {
	state = uuid.NewString()
	return f.AuthURL(state), state
}

// VerifyState compares the state returned on the callback with the one sent.
func VerifyState(expected, got string) error {
	if expected == "" || expected != got {
		return ErrInvalidState
	}
	return nil
}

// ExchangeCode trades an authorization code for an access token.
func (f *Flow) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	tok, err := f.code.Exchange(f.context(ctx), code)
	if err != nil {
		return nil, tokenError("token exchange", err)
	}
	return newToken(tok), nil
}

// AppToken retrieves an application token with the client credentials grant.
func (f *Flow) AppToken(ctx context.Context) (*Token, error) {
	tok, err := f.app.Token(f.context(ctx))
	if err != nil {
		return nil, tokenError("app token request", err)
	}
	return newToken(tok), nil
}

func (f *Flow) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

func newToken(tok *oauth2.Token) *Token {
	return &Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
	}
}

// tokenError keeps the provider's own message when the token endpoint
// answered with an error status.
func tokenError(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return fmt.Errorf("%s failed: status %d: %s", op, rerr.Response.StatusCode, errorMessage(rerr.Body))
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// errorMessage extracts a readable message from the error payloads used by
// Instagram ({"error_message"}) and Facebook ({"error": {"message"}}).
func errorMessage(body []byte) string {
	var payload struct {
		ErrorMessage string `json:"error_message"`
		Error        struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrorMessage != "" {
			return payload.ErrorMessage
		}
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
	}
	return strings.TrimSpace(string(body))
}
