package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/aggregator"
	"github.com/gauthierbraillon/flaneur/internal/location"
	"github.com/gauthierbraillon/flaneur/internal/logging"
	"github.com/gauthierbraillon/flaneur/pkg/oauth"
)

const (
	stateCookie = "flaneur_oauth_state"

	msgMissingToken = "No token provided. Please use the connection endpoint to get one."
	msgInvalidArgs  = "Invalid arguments."
)

// handleConnect redirects the browser to the provider authorization dialog.
func (s *Server) handleConnect(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, ok := s.auth[provider]
		if !ok {
			writeText(w, http.StatusServiceUnavailable, provider+" OAuth is not configured.")
			return
		}

		authURL, state := flow.GenerateAuthURL()
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookie,
			Value:    state,
			Path:     "/" + provider,
			MaxAge:   600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// handleAuthorize exchanges the authorization code and shows the access token.
// The state is checked only when the connect cookie came back with the request.
func (s *Server) handleAuthorize(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, ok := s.auth[provider]
		if !ok {
			writeText(w, http.StatusServiceUnavailable, provider+" OAuth is not configured.")
			return
		}

		q := r.URL.Query()
		if reason := q.Get("error"); reason != "" {
			msg := q.Get("error_description")
			if msg == "" {
				msg = reason
			}
			writeText(w, http.StatusBadRequest, "Authorization denied: "+msg)
			return
		}

		code := q.Get("code")
		if code == "" {
			writeText(w, http.StatusBadRequest, msgInvalidArgs)
			return
		}

		if cookie, err := r.Cookie(stateCookie); err == nil {
			if err := oauth.VerifyState(cookie.Value, q.Get("state")); err != nil {
				writeText(w, http.StatusBadRequest, msgInvalidArgs)
				return
			}
		}

		token, err := flow.ExchangeCode(r.Context(), code)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("provider", provider).Msg("token exchange failed")
			writeText(w, http.StatusBadGateway, "Could not exchange the authorization code: "+err.Error())
			return
		}

		writeText(w, http.StatusOK, token.AccessToken)
	}
}

// handleProvider runs a single provider from query parameters, buffered or
// streamed as NDJSON when stream=true.
func (s *Server) handleProvider(provider, cursorParam string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("token") == "" {
			writeText(w, http.StatusBadRequest, msgMissingToken)
			return
		}

		opts, err := aggregator.QueryOptions(q, cursorParam)
		if err != nil {
			writeError(w, provider, err)
			return
		}

		if strings.EqualFold(q.Get("stream"), "true") {
			s.stream(w, r, provider, opts)
			return
		}

		records, err := s.agg.Collect(r.Context(), provider, opts)
		if err != nil {
			writeError(w, provider, err)
			return
		}
		if records == nil {
			records = []location.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// handleSocialLocation runs every requested provider concurrently. Provider
// failures are reported inside the result, so the status is always 200.
func (s *Server) handleSocialLocation(w http.ResponseWriter, r *http.Request) {
	req := s.agg.ParseRequest(r.URL.Query())
	writeJSON(w, http.StatusOK, s.agg.Aggregate(r.Context(), req))
}

// statusFor maps a run error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, aggregator.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, location.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, location.ErrAuth):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

type errorBody struct {
	Error *location.Error `json:"error"`
}

func writeError(w http.ResponseWriter, provider string, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: attributed(provider, err)})
}

// attributed returns err as a classified error naming provider.
func attributed(provider string, err error) *location.Error {
	le := location.AsError(provider, err)
	if le.Provider == "" {
		c := *le
		c.Provider = provider
		le = &c
	}
	return le
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logging.Err(err).Msg("failed to encode response")
		writeText(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
