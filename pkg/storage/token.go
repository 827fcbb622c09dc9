package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/igolaizola/sunoplayer/pkg/suno"
	"gorm.io/gorm"
)

const (
	tokenKey  = "__jwt_token"
	expiryKey = "__jwt_expiry"
)

// NewTokenStore returns a durable token record for the given account.
func (s *Store) NewTokenStore(account string) suno.Durable {
	return &tokenStore{
		store:   s,
		account: account,
	}
}

type tokenStore struct {
	store   *Store
	account string
}

func (t *tokenStore) key(name string) string {
	return fmt.Sprintf("suno/%s/%s", t.account, name)
}

func (t *tokenStore) GetToken(ctx context.Context) (*suno.Record, error) {
	token, err := t.store.GetSetting(ctx, t.key(tokenKey))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if token.Value == "" {
		return nil, nil
	}
	rec := &suno.Record{
		Token:   token.Value,
		SavedAt: token.UpdatedAt,
	}
	expiry, err := t.store.GetSetting(ctx, t.key(expiryKey))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		secs, err := strconv.ParseInt(expiry.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("storage: invalid token expiry %q: %w", expiry.Value, err)
		}
		rec.Expiry = time.Unix(secs, 0)
	}
	return rec, nil
}

// SetToken writes token and expiry in a single transaction.
func (t *tokenStore) SetToken(ctx context.Context, rec *suno.Record) error {
	err := t.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setSetting(tx, &Setting{ID: t.key(tokenKey), Value: rec.Token}); err != nil {
			return err
		}
		expiry := strconv.FormatInt(rec.Expiry.Unix(), 10)
		return setSetting(tx, &Setting{ID: t.key(expiryKey), Value: expiry})
	})
	if err != nil {
		return fmt.Errorf("storage: failed to set token: %w", err)
	}
	return nil
}

func (t *tokenStore) DeleteToken(ctx context.Context) error {
	return t.store.DeleteSetting(ctx, t.key(tokenKey), t.key(expiryKey))
}
