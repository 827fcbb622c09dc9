package suno

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultMargin is how long before expiry a credential stops being used.
	DefaultMargin = 60 * time.Second
	// DefaultRetention is how long a persisted token is kept.
	DefaultRetention = 30 * 24 * time.Hour
)

// Record is the durable copy of a credential.
type Record struct {
	Token   string
	Expiry  time.Time
	SavedAt time.Time
}

// Durable persists the token record. GetToken returns nil when there is no
// record. SetToken must write the whole record or nothing.
type Durable interface {
	GetToken(context.Context) (*Record, error)
	SetToken(context.Context, *Record) error
	DeleteToken(context.Context) error
}

// TokenStore caches the current credential and mirrors it to durable
// storage.
type TokenStore struct {
	durable   Durable
	margin    time.Duration
	retention time.Duration
	now       func() time.Time
	debug     bool

	lck  sync.Mutex
	cred *Credential
}

type StoreConfig struct {
	Durable   Durable
	Margin    time.Duration
	Retention time.Duration
	Now       func() time.Time
	Debug     bool
}

func NewTokenStore(cfg *StoreConfig) *TokenStore {
	margin := cfg.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	retention := cfg.Retention
	if retention == 0 {
		retention = DefaultRetention
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenStore{
		durable:   cfg.Durable,
		margin:    margin,
		retention: retention,
		now:       now,
		debug:     cfg.Debug,
	}
}

// Get returns the current credential. It returns ErrUnauthenticated when
// there is none or it is within the safety margin of its expiry.
func (s *TokenStore) Get(ctx context.Context) (*Credential, error) {
	s.lck.Lock()
	defer s.lck.Unlock()
	now := s.now()
	if s.cred.Valid(now, s.margin) {
		c := *s.cred
		return &c, nil
	}
	s.cred = nil

	cred, err := s.load(ctx, now)
	if err != nil {
		return nil, err
	}
	if cred == nil || !cred.Valid(now, s.margin) {
		return nil, ErrUnauthenticated
	}
	s.cred = cred
	c := *cred
	return &c, nil
}

// Peek returns the cached or persisted credential even if it is expired.
// It returns nil if there is nothing stored.
func (s *TokenStore) Peek(ctx context.Context) (*Credential, error) {
	s.lck.Lock()
	defer s.lck.Unlock()
	if s.cred != nil {
		c := *s.cred
		return &c, nil
	}
	return s.load(ctx, s.now())
}

func (s *TokenStore) load(ctx context.Context, now time.Time) (*Credential, error) {
	rec, err := s.durable.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("suno: couldn't load token: %w", err)
	}
	if rec == nil || rec.Token == "" {
		return nil, nil
	}
	if !rec.SavedAt.IsZero() && now.Sub(rec.SavedAt) > s.retention {
		s.log("suno: stored token saved at %s is past retention", rec.SavedAt.Format(time.RFC3339))
		if err := s.durable.DeleteToken(ctx); err != nil {
			return nil, fmt.Errorf("suno: couldn't delete token: %w", err)
		}
		return nil, nil
	}
	cred, err := ParseCredential(rec.Token, now)
	if err != nil {
		// Keep the expiry that was defaulted when the token was set
		cred.Expiry = rec.Expiry
	}
	return cred, nil
}

// Set decodes and stores a new token, replacing the previous one. Tokens
// whose payload can't be decoded are accepted with a one hour expiry and
// the ErrMalformedCredential condition is logged.
func (s *TokenStore) Set(ctx context.Context, raw string) (*Credential, error) {
	token := NormalizeToken(raw)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidTokenFormat)
	}
	s.lck.Lock()
	defer s.lck.Unlock()
	now := s.now()
	cred, err := ParseCredential(token, now)
	if err != nil {
		log.Printf("❌ %v (expiry defaulted to %s)\n", err, cred.Expiry.Format(time.RFC3339))
	}
	rec := &Record{
		Token:   token,
		Expiry:  cred.Expiry,
		SavedAt: now,
	}
	if err := s.durable.SetToken(ctx, rec); err != nil {
		return nil, fmt.Errorf("suno: couldn't save token: %w", err)
	}
	s.cred = cred
	s.log("suno: token stored, expires at %s", cred.Expiry.Format(time.RFC3339))
	c := *cred
	return &c, nil
}

// Check reports an error wrapping ErrInvalidTokenFormat if token is
// already expired or within the margin of its expiry. Tokens whose payload
// can't be decoded pass, Set gives them a default expiry.
func (s *TokenStore) Check(token string) error {
	now := s.now()
	cred, err := ParseCredential(token, now)
	if err != nil {
		return nil
	}
	if !cred.Valid(now, s.margin) {
		return fmt.Errorf("%w: token expired at %s", ErrInvalidTokenFormat, cred.Expiry.Format(time.RFC3339))
	}
	return nil
}

// Clear removes the credential from memory and durable storage.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.lck.Lock()
	defer s.lck.Unlock()
	s.cred = nil
	if err := s.durable.DeleteToken(ctx); err != nil {
		return fmt.Errorf("suno: couldn't delete token: %w", err)
	}
	return nil
}

// CheckAuth reports whether a usable credential exists.
func (s *TokenStore) CheckAuth(ctx context.Context) bool {
	_, err := s.Get(ctx)
	if err != nil && !errors.Is(err, ErrUnauthenticated) {
		log.Println("❌", err)
	}
	return err == nil
}

func (s *TokenStore) log(format string, args ...interface{}) {
	if s.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

type fileRecord struct {
	Token   string `json:"__jwt_token"`
	Expiry  int64  `json:"__jwt_expiry"`
	SavedAt int64  `json:"__jwt_saved,omitempty"`
}

type fileStore struct {
	path string
}

// NewFileStore returns a durable store backed by a JSON file.
func NewFileStore(path string) Durable {
	return &fileStore{
		path: path,
	}
}

func (f *fileStore) GetToken(ctx context.Context) (*Record, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("suno: couldn't read token file: %w", err)
	}
	var r fileRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("suno: couldn't unmarshal token file: %w", err)
	}
	if r.Token == "" {
		return nil, nil
	}
	rec := &Record{
		Token:  r.Token,
		Expiry: time.Unix(r.Expiry, 0),
	}
	if r.SavedAt > 0 {
		rec.SavedAt = time.Unix(r.SavedAt, 0)
	}
	return rec, nil
}

func (f *fileStore) SetToken(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(&fileRecord{
		Token:   rec.Token,
		Expiry:  rec.Expiry.Unix(),
		SavedAt: rec.SavedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("suno: couldn't marshal token: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("suno: couldn't create token dir: %w", err)
	}
	// Write to a temp file and rename so readers never see a partial token
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("suno: couldn't create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("suno: couldn't write token: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("suno: couldn't sync token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("suno: couldn't close token file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("suno: couldn't chmod token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("suno: couldn't write token file: %w", err)
	}
	return nil
}

func (f *fileStore) DeleteToken(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("suno: couldn't remove token file: %w", err)
	}
	return nil
}
