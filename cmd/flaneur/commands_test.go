package main

import (
	"bytes"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gauthierbraillon/flaneur/internal/config"
)

func testLoader(mutate func(*config.Config)) loader {
	return func() (*config.Config, error) {
		cfg := newTestConfig()
		if mutate != nil {
			mutate(&cfg)
		}
		return &cfg, nil
	}
}

func TestParseTimeFlag(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{"empty", "", time.Time{}, false},
		{"date", "2024-01-31", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false},
		{"rfc3339", "2024-01-31T08:30:00Z", time.Date(2024, 1, 31, 8, 30, 0, 0, time.UTC), false},
		{"duration", "48h", now.Add(-48 * time.Hour), false},
		{"negative duration", "-1h", time.Time{}, true},
		{"garbage", "last week", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimeFlag(tt.value, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTimeFlag(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTimeFlag(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFetchCommand_FlagValidation(t *testing.T) {
	t.Setenv("FLANEUR_FACEBOOK_TOKEN", "")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown provider", []string{"--provider", "twitter"}, `unknown provider "twitter": must be one of instagram, facebook, facebook_events`},
		{"bad since", []string{"--since", "yesterday"}, "invalid --since"},
		{"bad until", []string{"--until", "tomorrow"}, "invalid --until"},
		{"until before since", []string{"--since", "2024-02-01", "--until", "2024-01-01"}, "--until must not be before --since"},
		{"no token for selection", []string{"--provider", "facebook"}, "no token provided for facebook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFetchCmd(testLoader(nil))
			cmd.SetArgs(append([]string{"--instagram-token", "ig-token"}, tt.args...))
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()

			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthCommand_OpensDialogWithOpener(t *testing.T) {
	var opened string
	cmd := newAuthCmd(testLoader(nil), func(rawURL string) error {
		opened = rawURL
		return nil
	})
	var out bytes.Buffer
	cmd.SetArgs([]string{"facebook"})
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := url.Parse(opened)
	if err != nil {
		t.Fatalf("opener got an invalid URL %q: %v", opened, err)
	}
	q := u.Query()
	if q.Get("client_id") != "fb-app" || q.Get("state") == "" {
		t.Errorf("dialog URL should carry the app ID and a state, got %s", opened)
	}
	if q.Get("redirect_uri") != "http://localhost:8080/facebook/authorize" {
		t.Errorf("wrong redirect_uri %q", q.Get("redirect_uri"))
	}
	if strings.Contains(out.String(), "Please visit") {
		t.Errorf("URL should only be printed when the browser fails, got:\n%s", out.String())
	}
}

func TestAuthCommand_PrintsURLWhenOpenerFails(t *testing.T) {
	cmd := newAuthCmd(testLoader(nil), func(string) error { return errors.New("no display") })
	var out bytes.Buffer
	cmd.SetArgs([]string{"instagram"})
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Could not open browser. Please visit:\nhttps://api.instagram.com/oauth/authorize/?") {
		t.Errorf("URL should be printed as a fallback, got:\n%s", out.String())
	}
}

func TestAuthCommand_RejectsIncompleteApp(t *testing.T) {
	opened := false
	cmd := newAuthCmd(testLoader(func(c *config.Config) { c.Instagram.Scopes = nil }), func(string) error {
		opened = true
		return nil
	})
	cmd.SetArgs([]string{"instagram"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()

	if err == nil || !strings.Contains(err.Error(), "at least one scope is required") {
		t.Errorf("expected the validation error, got %v", err)
	}
	if opened {
		t.Error("browser should not be opened for an incomplete app")
	}
}

func TestOAuthFlows_SkipsIncompleteApps(t *testing.T) {
	cfg := newTestConfig()
	cfg.Facebook.RedirectURL = ""

	flows := oauthFlows(&cfg)

	if _, ok := flows["instagram"]; !ok {
		t.Error("complete instagram app should have a flow")
	}
	if _, ok := flows["facebook"]; ok {
		t.Error("facebook app without a redirect URL should be skipped")
	}
}
