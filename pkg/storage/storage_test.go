package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/igolaizola/sunoplayer/pkg/suno"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New("sqlite", filepath.Join(t.TempDir(), "sunoplayer.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestUnknownType(t *testing.T) {
	if _, err := New("oracle", "", false); err == nil {
		t.Fatal("New() with unknown type didn't fail")
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetSetting(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSetting() err = %v; want ErrNotFound", err)
	}
	for _, v := range []string{"1", "2"} {
		if err := setSetting(s.db, &Setting{ID: "a", Value: v}); err != nil {
			t.Fatal(err)
		}
	}
	if err := setSetting(s.db, &Setting{ID: "b", Value: "3"}); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetSetting(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if v.Value != "2" {
		t.Errorf("value = %q; want 2", v.Value)
	}
	if err := s.DeleteSetting(ctx, "a", "b", "missing"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := s.GetSetting(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSetting(%s) after delete err = %v; want ErrNotFound", id, err)
		}
	}
	if err := s.DeleteSetting(ctx); err != nil {
		t.Errorf("DeleteSetting() with no ids err = %v", err)
	}
}

func TestMigrateVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Migrating an up to date database again is a no-op
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() again err = %v", err)
	}
	var m Migration
	if err := s.db.First(&m).Error; err != nil {
		t.Fatal(err)
	}
	if m.Version != schemaVersion {
		t.Errorf("version = %d; want %d", m.Version, schemaVersion)
	}

	m.Version = schemaVersion + 1
	if err := s.db.Save(&m).Error; err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate(ctx); err == nil {
		t.Error("Migrate() accepted a newer schema version")
	}
}

func TestTokenStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := s.NewTokenStore("default")

	rec, err := d.GetToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("GetToken() = %+v; want nil", rec)
	}

	expiry := time.Unix(1999999999, 0)
	if err := d.SetToken(ctx, &suno.Record{Token: "eyJ.a.b", Expiry: expiry, SavedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	rec, err = d.GetToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Token != "eyJ.a.b" || !rec.Expiry.Equal(expiry) {
		t.Errorf("GetToken() = %+v", rec)
	}
	if rec.SavedAt.IsZero() {
		t.Error("saved time not set")
	}

	other, err := s.NewTokenStore("other").GetToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if other != nil {
		t.Error("token leaked to another account")
	}

	if err := d.DeleteToken(ctx); err != nil {
		t.Fatal(err)
	}
	rec, err = d.GetToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("GetToken() after delete = %+v; want nil", rec)
	}
}

func TestTokenStoreWithTokenStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ts := suno.NewTokenStore(&suno.StoreConfig{Durable: s.NewTokenStore("default")})
	token := "eyJhbGciOiJIUzI1NiJ9.eyJleHAiOjk5OTk5OTk5OTl9.sig"
	if _, err := ts.Set(ctx, token); err != nil {
		t.Fatal(err)
	}

	reloaded := suno.NewTokenStore(&suno.StoreConfig{Durable: s.NewTokenStore("default")})
	cred, err := reloaded.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Token != token || cred.Expiry.Unix() != 9999999999 {
		t.Errorf("Get() = %+v", cred)
	}
}
