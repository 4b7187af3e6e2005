package location

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth matches errors caused by a missing or rejected credential.
	ErrAuth = errors.New("authentication failed")
	// ErrUpstream matches errors caused by an error payload or an unexpected response shape.
	ErrUpstream = errors.New("upstream error")
	// ErrNetwork matches transport-level failures.
	ErrNetwork = errors.New("network error")
	// ErrInvalid matches options rejected before any request was made.
	ErrInvalid = errors.New("invalid options")
)

// Kind classifies a provider failure.
type Kind string

const (
	KindAuth     Kind = "auth"
	KindUpstream Kind = "upstream"
	KindNetwork  Kind = "network"
	KindInvalid  Kind = "invalid"
)

// Error is a classified provider failure.
type Error struct {
	Provider string `json:"provider,omitempty"`
	Kind     Kind   `json:"kind"`
	Status   int    `json:"status,omitempty"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrInvalid:
		return e.Kind == KindInvalid
	}
	return false
}

// AuthError builds a KindAuth error.
func AuthError(provider string, status int, message string) *Error {
	return &Error{Provider: provider, Kind: KindAuth, Status: status, Message: message}
}

// UpstreamError builds a KindUpstream error.
func UpstreamError(provider string, status int, message string, cause error) *Error {
	return &Error{Provider: provider, Kind: KindUpstream, Status: status, Message: message, Err: cause}
}

// NetworkError builds a KindNetwork error.
func NetworkError(provider string, cause error) *Error {
	return &Error{Provider: provider, Kind: KindNetwork, Message: "request failed", Err: cause}
}

// InvalidError builds a KindInvalid error.
func InvalidError(provider, message string, cause error) *Error {
	return &Error{Provider: provider, Kind: KindInvalid, Message: message, Err: cause}
}

// AsError extracts a classified error, wrapping unclassified ones as upstream failures.
func AsError(provider string, err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return &Error{Provider: provider, Kind: KindUpstream, Message: err.Error(), Err: err}
}
