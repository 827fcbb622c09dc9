package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/igolaizola/sunoplayer/pkg/player"
	"github.com/igolaizola/sunoplayer/pkg/suno"
)

type fakeMedia struct {
	position time.Duration
}

func (m *fakeMedia) Load(string) error          { m.position = 0; return nil }
func (m *fakeMedia) Play() error                { return nil }
func (m *fakeMedia) Pause() error               { return nil }
func (m *fakeMedia) Seek(d time.Duration) error { m.position = d; return nil }
func (m *fakeMedia) Position() time.Duration    { return m.position }
func (m *fakeMedia) SetLoop(bool)               {}

type fakeBackend struct {
	engine  *player.Engine
	token   string
	liked   bool
	page    int
	loadErr error
}

func (b *fakeBackend) LoadTracks(ctx context.Context, liked bool, page int) ([]suno.Track, error) {
	b.liked = liked
	b.page = page
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	tracks := []suno.Track{
		{ID: "a", Title: "A", Audio: "https://cdn1.suno.ai/a.mp3", Duration: 120},
		{ID: "b", Title: "B", Audio: "https://cdn1.suno.ai/b.mp3", Duration: 60},
	}
	b.engine.SetTracks(tracks)
	return tracks, nil
}

func (b *fakeBackend) Auth(ctx context.Context) (*suno.Credential, error) {
	if b.token == "" {
		return nil, nil
	}
	return &suno.Credential{Token: b.token, Expiry: time.Unix(9999999999, 0)}, nil
}

func (b *fakeBackend) SetToken(ctx context.Context, raw string) error {
	token := suno.NormalizeToken(raw)
	if err := suno.ValidateToken(token, 10); err != nil {
		return err
	}
	b.token = token
	return nil
}

func (b *fakeBackend) Logout(ctx context.Context) error {
	b.token = ""
	return nil
}

func (b *fakeBackend) Player() *player.Engine {
	return b.engine
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{engine: player.New(&player.Config{Media: &fakeMedia{}, Notify: func(string) {}})}
	srv := httptest.NewServer(Handler(&Config{}, b))
	t.Cleanup(srv.Close)
	return srv, b
}

func do(t *testing.T, method, u, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: couldn't decode: %v", method, u, err)
		}
	}
	return resp.StatusCode
}

func TestTracks(t *testing.T) {
	srv, b := newTestServer(t)
	var page trackPage
	if status := do(t, "GET", srv.URL+"/api/tracks?liked=true&page=2", "", &page); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !b.liked || b.page != 2 {
		t.Errorf("backend called with liked=%v page=%d", b.liked, b.page)
	}
	if len(page.Tracks) != 2 || page.HasMore || page.Page != 2 {
		t.Errorf("page = %+v", page)
	}

	b.loadErr = fmt.Errorf("expired: %w", suno.ErrUnauthenticated)
	if status := do(t, "GET", srv.URL+"/api/tracks", "", nil); status != http.StatusUnauthorized {
		t.Errorf("status = %d; want 401", status)
	}
}

func TestPlayer(t *testing.T) {
	srv, _ := newTestServer(t)
	if status := do(t, "POST", srv.URL+"/api/player/next", "", nil); status != http.StatusConflict {
		t.Errorf("next without tracks status = %d; want 409", status)
	}
	do(t, "GET", srv.URL+"/api/tracks", "", nil)

	var s playerState
	if status := do(t, "POST", srv.URL+"/api/player/toggle", "", &s); status != http.StatusOK {
		t.Fatalf("toggle status = %d", status)
	}
	if s.Index != 0 || !s.Playing || s.Duration != "2:00" {
		t.Errorf("state = %+v", s)
	}
	do(t, "POST", srv.URL+"/api/player/next", "", &s)
	if s.Index != 1 {
		t.Errorf("next index = %d; want 1", s.Index)
	}
	do(t, "POST", srv.URL+"/api/player/next", "", &s)
	if s.Index != 0 {
		t.Errorf("next index = %d; want 0", s.Index)
	}
	do(t, "POST", srv.URL+"/api/player/previous", "", &s)
	if s.Index != 1 {
		t.Errorf("previous index = %d; want 1", s.Index)
	}
	do(t, "POST", srv.URL+"/api/player/repeat", "", &s)
	if !s.Repeat {
		t.Error("repeat not enabled")
	}
	do(t, "POST", srv.URL+"/api/player/seek?fraction=0.5", "", &s)
	if s.Position != "0:30" {
		t.Errorf("position = %q; want 0:30", s.Position)
	}
	if status := do(t, "POST", srv.URL+"/api/player/play/5", "", nil); status != http.StatusNotFound {
		t.Errorf("play out of range status = %d; want 404", status)
	}
	do(t, "POST", srv.URL+"/api/player/play/0", "", &s)
	if s.Index != 0 || s.Track.ID != "a" {
		t.Errorf("play state = %+v", s)
	}
}

func TestLike(t *testing.T) {
	srv, b := newTestServer(t)
	do(t, "GET", srv.URL+"/api/tracks", "", nil)
	var out struct {
		Liked bool `json:"liked"`
	}
	if status := do(t, "POST", srv.URL+"/api/player/like/1", "", &out); status != http.StatusOK {
		t.Fatalf("like status = %d", status)
	}
	if !out.Liked || !b.engine.Tracks()[1].Liked {
		t.Error("track not liked")
	}
	if status := do(t, "POST", srv.URL+"/api/player/like/9", "", nil); status != http.StatusNotFound {
		t.Errorf("like out of range status = %d; want 404", status)
	}
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	var status authStatus
	do(t, "GET", srv.URL+"/api/auth", "", &status)
	if status.Authenticated {
		t.Fatal("authenticated without token")
	}
	if code := do(t, "POST", srv.URL+"/api/auth", `{"token":"nope"}`, nil); code != http.StatusBadRequest {
		t.Errorf("invalid token status = %d; want 400", code)
	}
	if code := do(t, "POST", srv.URL+"/api/auth", `{"token":"Bearer eyJa.eyJb.sig"}`, nil); code != http.StatusNoContent {
		t.Errorf("set token status = %d; want 204", code)
	}
	do(t, "GET", srv.URL+"/api/auth", "", &status)
	if !status.Authenticated || status.Expiry == nil {
		t.Errorf("status = %+v; want authenticated", status)
	}
	if code := do(t, "DELETE", srv.URL+"/api/auth", "", nil); code != http.StatusNoContent {
		t.Errorf("logout status = %d; want 204", code)
	}
	status = authStatus{}
	do(t, "GET", srv.URL+"/api/auth", "", &status)
	if status.Authenticated {
		t.Error("authenticated after logout")
	}
}

func TestBasicAuth(t *testing.T) {
	b := &fakeBackend{engine: player.New(&player.Config{Media: &fakeMedia{}})}
	srv := httptest.NewServer(Handler(&Config{Credentials: map[string]string{"user": "pass"}}, b))
	defer srv.Close()
	if code := do(t, "GET", srv.URL+"/api/player", "", nil); code != http.StatusUnauthorized {
		t.Errorf("status = %d; want 401", code)
	}
}
