// Package browser opens the OAuth authorization dialog in the user's browser.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// Opener shows a URL to the user.
type Opener func(rawURL string) error

// Open starts the default browser of the running platform on rawURL.
func Open(rawURL string) error {
	cmd, err := Command(runtime.GOOS, rawURL)
	if err != nil {
		return err
	}
	return cmd.Start()
}

// Command returns the command that opens rawURL on goos. Only absolute http
// and https URLs are accepted, so nothing else ever reaches the shell helpers.
func Command(goos, rawURL string) (*exec.Cmd, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q: only http and https are allowed", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", rawURL), nil // #nosec G204 -- URL validated above
	case "darwin":
		return exec.Command("open", rawURL), nil // #nosec G204 -- URL validated above
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL), nil // #nosec G204 -- URL validated above
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
