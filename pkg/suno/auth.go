package suno

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinTokenLength is the shortest pasted token accepted by default. Real
// session JWTs are several hundred characters long.
const MinTokenLength = 100

// defaultLifetime is applied when a token's expiry can't be decoded.
const defaultLifetime = time.Hour

var tokenShape = regexp.MustCompile(`^eyJ[^.]*\.[^.]*\.[^.]*$`)

// Credential is a bearer JWT and the data decoded from its payload.
type Credential struct {
	Token   string    `json:"token" yaml:"-"`
	Expiry  time.Time `json:"expiry" yaml:"expiry"`
	Subject string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	// Defaulted is set when the expiry wasn't decoded from the token.
	Defaulted bool `json:"defaulted,omitempty" yaml:"defaulted,omitempty"`
}

// Valid reports whether the credential can still be used at now, keeping
// margin before the expiry.
func (c *Credential) Valid(now time.Time, margin time.Duration) bool {
	if c == nil || c.Token == "" {
		return false
	}
	return now.Before(c.Expiry.Add(-margin))
}

type claims struct {
	Azp string `json:"azp"`
	Sid string `json:"sid"`
	jwt.RegisteredClaims
}

func toClaims(token string) (*claims, error) {
	var c claims
	_, _, err := jwt.NewParser().ParseUnverified(token, &c)
	// Unknown signing algorithms don't matter, the signature isn't checked
	if err != nil && !(errors.Is(err, jwt.ErrTokenUnverifiable) && c.ExpiresAt != nil) {
		return nil, fmt.Errorf("suno: couldn't decode access token: %w", err)
	}
	if c.ExpiresAt == nil {
		return nil, errors.New("suno: access token without exp")
	}
	return &c, nil
}

// ParseCredential decodes the token payload. If it can't be decoded the
// returned credential expires one hour after now and the error wraps
// ErrMalformedCredential.
func ParseCredential(token string, now time.Time) (*Credential, error) {
	c, err := toClaims(token)
	if err != nil {
		return &Credential{
			Token:     token,
			Expiry:    now.Add(defaultLifetime),
			Defaulted: true,
		}, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}
	return &Credential{
		Token:   token,
		Expiry:  c.ExpiresAt.Time,
		Subject: c.Subject,
	}, nil
}

// NormalizeToken trims spaces and an optional "Bearer " prefix.
func NormalizeToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}

// ValidateToken checks the shape of a pasted token. The token must be
// normalized already.
func ValidateToken(token string, minLength int) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidTokenFormat)
	}
	if !tokenShape.MatchString(token) {
		return fmt.Errorf("%w: expected three dot separated segments starting with eyJ", ErrInvalidTokenFormat)
	}
	if len(token) < minLength {
		return fmt.Errorf("%w: token too short (%d < %d)", ErrInvalidTokenFormat, len(token), minLength)
	}
	return nil
}
