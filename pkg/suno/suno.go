package suno

import (
	"errors"
	"fmt"
	"time"
)

const (
	// SiteURL is the public site, also used as origin for API requests.
	SiteURL = "https://suno.com"
	// SignInURL is opened in the user's browser to obtain a session.
	SignInURL = "https://suno.com/sign-in"
	// APIBase is the default base URL of the studio API.
	APIBase = "https://studio-api.prod.suno.com"
)

var (
	// ErrUnauthenticated is returned when there is no usable credential.
	ErrUnauthenticated = errors.New("suno: unauthenticated")
	// ErrInvalidTokenFormat is returned when a submitted token doesn't look
	// like a JWT.
	ErrInvalidTokenFormat = errors.New("suno: invalid token format")
	// ErrInvalidResponse is returned when the API body isn't JSON.
	ErrInvalidResponse = errors.New("suno: invalid response")
	// ErrTransport wraps network level failures.
	ErrTransport = errors.New("suno: transport error")
	// ErrMalformedCredential is reported when the JWT payload can't be
	// decoded. The credential is still accepted with a default expiry.
	ErrMalformedCredential = errors.New("suno: malformed credential")
)

type errStatusCode int

func (e errStatusCode) Error() string {
	return fmt.Sprintf("%d", e)
}

// StatusCode returns the HTTP status wrapped in err, or 0.
func StatusCode(err error) int {
	var errStatus errStatusCode
	if errors.As(err, &errStatus) {
		return int(errStatus)
	}
	return 0
}

// IsUnauthorized reports whether err means the session is no longer valid.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthenticated) {
		return true
	}
	switch StatusCode(err) {
	case 401, 403:
		return true
	}
	return false
}

// Track is a normalized, playable feed entry.
type Track struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Artist    string    `json:"artist" yaml:"artist"`
	Cover     string    `json:"cover" yaml:"cover"`
	Audio     string    `json:"audio" yaml:"audio"`
	Duration  float64   `json:"duration" yaml:"duration"`
	Liked     bool      `json:"liked" yaml:"liked"`
	PlayCount int       `json:"play_count" yaml:"play_count"`
	Status    string    `json:"status" yaml:"status"`
	Tags      string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
