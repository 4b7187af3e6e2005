// Package main provides the flaneur CLI entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/flaneur/internal/aggregator"
	"github.com/gauthierbraillon/flaneur/internal/config"
	"github.com/gauthierbraillon/flaneur/internal/display"
	"github.com/gauthierbraillon/flaneur/internal/facebook"
	"github.com/gauthierbraillon/flaneur/internal/instagram"
	"github.com/gauthierbraillon/flaneur/internal/location"
	"github.com/gauthierbraillon/flaneur/internal/logging"
	"github.com/gauthierbraillon/flaneur/internal/server"
	"github.com/gauthierbraillon/flaneur/pkg/browser"
	"github.com/gauthierbraillon/flaneur/pkg/oauth"
)

// version is set with -ldflags "-X main.version=..."; see resolveVersion.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveVersion prefers the ldflags version, then the module version
// recorded by go install.
func resolveVersion(ldflags string, info *debug.BuildInfo) string {
	if ldflags != "dev" {
		return ldflags
	}
	if info == nil || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func buildVersion() string {
	info, _ := debug.ReadBuildInfo()
	return resolveVersion(version, info)
}

// newRootCmd creates the root command for flaneur CLI.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "flaneur",
		Short:   "Aggregate geotagged activity from Instagram and Facebook",
		Long:    "Flaneur collects the places you were tagged at on Instagram and Facebook and merges them into one location timeline.",
		Version: buildVersion(),
	}

	rootCmd.SetVersionTemplate("flaneur version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default: $FLANEUR_CONFIG)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logging.Init(cfg.Logging.Logger())
		return cfg, nil
	}

	rootCmd.AddCommand(newServeCmd(load))
	rootCmd.AddCommand(newFetchCmd(load))
	rootCmd.AddCommand(newAuthCmd(load, browser.Open))
	rootCmd.AddCommand(newConfigCmd(load))

	return rootCmd
}

type loader func() (*config.Config, error)

// newServeCmd creates the serve subcommand.
func newServeCmd(load loader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the OAuth connection endpoints, the single-provider endpoints and /social-location.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(newAggregator(cfg), serverOptions(cfg)...)
			logging.Info().
				Str("version", buildVersion()).
				Bool("instagram_oauth", cfg.InstagramConfigured()).
				Bool("facebook_oauth", cfg.FacebookConfigured()).
				Msg("starting flaneur")
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides server.addr)")

	return cmd
}

// newFetchCmd creates the fetch subcommand.
func newFetchCmd(load loader) *cobra.Command {
	var (
		instagramToken   string
		facebookToken    string
		events           bool
		limit            int
		maxItems         int
		onlyWithLocation bool
		withCover        bool
		asJSON           bool
		providers        []string
		since            string
		until            string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Display the merged location timeline",
		Long:  "Fetch every provider a token is given for, concurrently, and display the merged timeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			if instagramToken == "" {
				instagramToken = os.Getenv("FLANEUR_INSTAGRAM_TOKEN")
			}
			if facebookToken == "" {
				facebookToken = os.Getenv("FLANEUR_FACEBOOK_TOKEN")
			}
			if instagramToken == "" && facebookToken == "" {
				return fmt.Errorf("no token provided: use --instagram-token or --facebook-token (run 'flaneur auth <provider>' to get one)")
			}

			agg := newAggregator(cfg)
			for _, p := range providers {
				if !agg.Has(p) {
					return fmt.Errorf("unknown provider %q: must be one of %s", p, strings.Join(agg.Providers(), ", "))
				}
			}
			now := time.Now()
			sinceTime, err := parseTimeFlag(since, now)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			untilTime, err := parseTimeFlag(until, now)
			if err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
			if !sinceTime.IsZero() && !untilTime.IsZero() && untilTime.Before(sinceTime) {
				return fmt.Errorf("--until must not be before --since")
			}

			selected := func(name string) bool {
				return len(providers) == 0 || slices.Contains(providers, name)
			}
			base := location.Options{
				MaxItems:         maxItems,
				OnlyWithLocation: onlyWithLocation,
				WithCover:        withCover,
			}
			req := aggregator.NewRequest()
			if instagramToken != "" && selected(instagram.Name) {
				opts := base
				opts.Token = instagramToken
				req.Add(instagram.Name, opts)
			}
			if facebookToken != "" {
				opts := base
				opts.Token = facebookToken
				if selected(facebook.Name) {
					req.Add(facebook.Name, opts)
				}
				if (events || slices.Contains(providers, facebook.EventsName)) && selected(facebook.EventsName) {
					req.Add(facebook.EventsName, opts)
				}
			}
			if len(req.Runs) == 0 {
				return fmt.Errorf("no token provided for %s", strings.Join(providers, ", "))
			}

			result := agg.Aggregate(cmd.Context(), req)

			if asJSON {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode result: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			formatter := display.NewTerminalFormatter()
			fmt.Fprint(cmd.ErrOrStderr(), formatter.FormatFailures(result))
			entries := aggregator.Timeline(result, aggregator.TimelineOptions{
				Limit:     limit,
				Since:     sinceTime,
				Until:     untilTime,
				Providers: providers,
			})
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatTimeline(entries))

			if len(result.Failed()) == len(result) {
				return fmt.Errorf("every provider failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&instagramToken, "instagram-token", "", "Instagram access token (default: $FLANEUR_INSTAGRAM_TOKEN)")
	cmd.Flags().StringVar(&facebookToken, "facebook-token", "", "Facebook access token (default: $FLANEUR_FACEBOOK_TOKEN)")
	cmd.Flags().BoolVarP(&events, "events", "e", false, "Also fetch Facebook events")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of locations to display")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Maximum number of records per provider (0: no cap)")
	cmd.Flags().BoolVar(&onlyWithLocation, "only-with-location", true, "Drop records without coordinates")
	cmd.Flags().BoolVar(&withCover, "with-cover", false, "Fetch cover photos where supported")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw aggregate result as JSON")
	cmd.Flags().StringSliceVarP(&providers, "provider", "p", nil, "Only fetch these providers (instagram, facebook, facebook_events)")
	cmd.Flags().StringVar(&since, "since", "", "Only display records after this date, time or duration ago (2024-01-31, RFC 3339, 720h)")
	cmd.Flags().StringVar(&until, "until", "", "Only display records before this date, time or duration ago")

	return cmd
}

// parseTimeFlag reads a date, an RFC 3339 time or a duration counted back
// from now. An empty value is the zero time.
func parseTimeFlag(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("%q is not a date, an RFC 3339 time or a positive duration", value)
	}
	return now.Add(-d), nil
}

// newAuthCmd creates the auth subcommand. open shows the authorization
// dialog to the user.
func newAuthCmd(load loader, open browser.Opener) *cobra.Command {
	var (
		noBrowser  bool
		testUserID string
	)

	cmd := &cobra.Command{
		Use:   "auth <provider>",
		Short: "Get an access token for a provider (instagram or facebook)",
		Long: "Open the provider authorization dialog. The provider redirects back to the " +
			"/authorize endpoint of a running 'flaneur serve', which shows the access token.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := args[0]
			if provider != instagram.Name && provider != facebook.Name {
				return fmt.Errorf("invalid provider %q: must be 'instagram' or 'facebook'", provider)
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			oc, ok := oauthConfigs(cfg)[provider]
			if !ok {
				if provider == facebook.Name {
					return fmt.Errorf("missing credentials: set FLANEUR_FACEBOOK_APP_ID and FLANEUR_FACEBOOK_APP_SECRET environment variables")
				}
				return fmt.Errorf("missing credentials: set FLANEUR_INSTAGRAM_CLIENT_ID and FLANEUR_INSTAGRAM_CLIENT_SECRET environment variables")
			}
			if err := oc.Validate(); err != nil {
				return fmt.Errorf("%s app is not usable: %w", provider, err)
			}
			flow := oauth.NewFlow(oc)

			if testUserID != "" {
				if provider != facebook.Name {
					return fmt.Errorf("--test-user is only supported for facebook")
				}
				appToken, err := flow.AppToken(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get app token: %w", err)
				}
				token, err := facebookClient(cfg).TestUserToken(cmd.Context(), cfg.Facebook.AppID, appToken.AccessToken, testUserID)
				if err != nil {
					return fmt.Errorf("failed to get test user token: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}

			authURL, _ := flow.GenerateAuthURL()
			fmt.Fprintf(cmd.OutOrStdout(), "Authenticating with %s...\n", provider)
			fmt.Fprintf(cmd.OutOrStdout(), "Make sure 'flaneur serve' is reachable at %s.\n", cfg.Server.PublicURL)

			if noBrowser {
				fmt.Fprintf(cmd.OutOrStdout(), "Please visit:\n%s\n", authURL)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opening browser for authorization...\n")
			if err := open(authURL); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Could not open browser. Please visit:\n%s\n", authURL)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening it")
	cmd.Flags().StringVar(&testUserID, "test-user", "", "Print the token of this Facebook test user instead")

	return cmd
}

// newConfigCmd creates the config subcommand.
func newConfigCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long:  "Print the configuration after defaults, config file and environment are applied. Secrets are redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(redacted(*cfg), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return cmd
}

func redacted(cfg config.Config) config.Config {
	if cfg.Instagram.ClientSecret != "" {
		cfg.Instagram.ClientSecret = "********"
	}
	if cfg.Facebook.AppSecret != "" {
		cfg.Facebook.AppSecret = "********"
	}
	return cfg
}
