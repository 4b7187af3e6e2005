package main

import (
	"github.com/gauthierbraillon/flaneur/internal/aggregator"
	"github.com/gauthierbraillon/flaneur/internal/config"
	"github.com/gauthierbraillon/flaneur/internal/facebook"
	"github.com/gauthierbraillon/flaneur/internal/instagram"
	"github.com/gauthierbraillon/flaneur/internal/logging"
	"github.com/gauthierbraillon/flaneur/internal/server"
	"github.com/gauthierbraillon/flaneur/pkg/oauth"
)

func instagramClient(cfg *config.Config) *instagram.Client {
	return instagram.NewClient(instagram.WithBaseURL(cfg.Instagram.BaseURL))
}

func facebookClient(cfg *config.Config) *facebook.Client {
	return facebook.NewClient(
		facebook.WithGraphURL(cfg.Facebook.GraphURL),
		facebook.WithAPIVersion(cfg.Facebook.APIVersion),
	)
}

// newAggregator registers every provider. Clients hold no credentials, so
// all of them are available whether or not the OAuth apps are configured.
func newAggregator(cfg *config.Config) *aggregator.Aggregator {
	fb := facebookClient(cfg)
	return aggregator.New([]aggregator.Source{
		{
			Name:       instagram.Name,
			Fetcher:    instagramClient(cfg),
			Normalizer: instagram.Normalizer,
			PageSize:   cfg.Instagram.PageSize,
		},
		{
			Name:       facebook.Name,
			Fetcher:    fb.TaggedPlaces(),
			Normalizer: facebook.PlacesNormalizer,
			PageSize:   cfg.Facebook.PageSize,
		},
		{
			Name:       facebook.EventsName,
			Fetcher:    fb.Events(),
			Normalizer: facebook.EventsNormalizer,
			PageSize:   cfg.Facebook.PageSize,
		},
	}, aggregator.WithRunTimeout(cfg.Server.RunTimeout))
}

// oauthConfigs returns the OAuth app of every provider with credentials.
func oauthConfigs(cfg *config.Config) map[string]oauth.Config {
	configs := make(map[string]oauth.Config, 2)
	if cfg.InstagramConfigured() {
		configs[instagram.Name] = instagram.OAuthConfig(
			cfg.Instagram.BaseURL,
			cfg.Instagram.ClientID,
			cfg.Instagram.ClientSecret,
			cfg.Instagram.RedirectURL,
			cfg.Instagram.Scopes,
		)
	}
	if cfg.FacebookConfigured() {
		configs[facebook.Name] = facebook.OAuthConfig(
			cfg.Facebook.DialogURL,
			cfg.Facebook.GraphURL,
			cfg.Facebook.APIVersion,
			cfg.Facebook.AppID,
			cfg.Facebook.AppSecret,
			cfg.Facebook.RedirectURL,
			cfg.Facebook.Scopes,
		)
	}
	return configs
}

// oauthFlows returns a flow per provider whose OAuth app is configured and
// complete. Incomplete apps are logged and left out.
func oauthFlows(cfg *config.Config) map[string]*oauth.Flow {
	flows := make(map[string]*oauth.Flow, 2)
	for name, oc := range oauthConfigs(cfg) {
		if err := oc.Validate(); err != nil {
			logging.Warn().Err(err).Str("provider", name).Msg("oauth app disabled")
			continue
		}
		flows[name] = oauth.NewFlow(oc)
	}
	return flows
}

func serverOptions(cfg *config.Config) []server.Option {
	opts := []server.Option{
		server.WithTimeouts(cfg.Server.ReadHeaderTimeout, cfg.Server.ShutdownTimeout),
	}
	flows := oauthFlows(cfg)
	if flow, ok := flows[instagram.Name]; ok {
		opts = append(opts, server.WithInstagramOAuth(flow))
	}
	if flow, ok := flows[facebook.Name]; ok {
		opts = append(opts, server.WithFacebookOAuth(flow))
	}
	return opts
}
