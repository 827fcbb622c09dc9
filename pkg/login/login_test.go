package login

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/igolaizola/sunoplayer/pkg/suno"
)

// fakeSurface hands the flow to the test and blocks until dismissed.
type fakeSurface struct {
	flows   chan *Flow
	dismiss chan struct{}

	lck     sync.Mutex
	focused int
	running int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		flows:   make(chan *Flow, 10),
		dismiss: make(chan struct{}),
	}
}

func (s *fakeSurface) Run(ctx context.Context, f *Flow) error {
	s.lck.Lock()
	s.running++
	s.lck.Unlock()
	defer func() {
		s.lck.Lock()
		s.running--
		s.lck.Unlock()
	}()
	s.flows <- f
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.dismiss:
		return ErrDismissed
	}
}

func (s *fakeSurface) Focus() {
	s.lck.Lock()
	defer s.lck.Unlock()
	s.focused++
}

func (s *fakeSurface) Running() int {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.running
}

func validToken() string {
	return tokenExpiring(time.Now().Add(time.Hour))
}

func tokenExpiring(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp.Unix())))
	return header + "." + payload + "." + strings.Repeat("x", 86)
}

func newTestAcquirer(t *testing.T) (*Acquirer, *suno.TokenStore, *fakeSurface, *[]string) {
	t.Helper()
	store := suno.NewTokenStore(&suno.StoreConfig{
		Durable: suno.NewFileStore(filepath.Join(t.TempDir(), "token.json")),
	})
	surface := newFakeSurface()
	var opened []string
	a := New(&Config{
		Store:   store,
		Surface: surface,
		Open: func(u string) error {
			opened = append(opened, u)
			return nil
		},
	})
	return a, store, surface, &opened
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFlowComplete(t *testing.T) {
	ctx := context.Background()
	a, store, surface, opened := newTestAcquirer(t)

	f, started := a.Start(ctx)
	if !started || f.State() != AwaitingUserInput {
		t.Fatalf("Start() = %v, %s; want started awaiting input", started, f.State())
	}
	if len(*opened) != 1 || (*opened)[0] != suno.SignInURL {
		t.Errorf("browser opened with %v; want %s", *opened, suno.SignInURL)
	}
	<-surface.flows

	token := validToken()
	if err := f.Submit(ctx, "Bearer "+token); err != nil {
		t.Fatalf("Submit() err = %v", err)
	}
	ok, err := f.Wait(ctx)
	if err != nil || !ok {
		t.Fatalf("Wait() = %v, %v; want true, nil", ok, err)
	}
	if f.State() != Completed {
		t.Errorf("State() = %s; want completed", f.State())
	}
	// The store write happened before the flow resolved
	cred, err := store.Get(ctx)
	if err != nil || cred.Token != token {
		t.Fatalf("Get() = %v, %v; want submitted token", cred, err)
	}
	// The surface is torn down and the acquirer is free again
	waitFor(t, func() bool { return surface.Running() == 0 })
	if a.Active() != nil {
		t.Error("Active() != nil after completion")
	}
	if err := f.Submit(ctx, token); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after completion err = %v; want ErrClosed", err)
	}
}

func TestFlowInvalidInput(t *testing.T) {
	ctx := context.Background()
	a, store, surface, _ := newTestAcquirer(t)
	f, _ := a.Start(ctx)
	<-surface.flows

	inputs := []string{
		"",
		"   ",
		"not a token",
		"eyJhbGciOiJIUzI1NiJ9.eyJleHAiOjk5OTk5OTk5OTl9",
		"eyJhbGciOiJIUzI1NiJ9.eyJleHAiOjk5OTk5OTk5OTl9.sig",
		"abc" + validToken()[3:],
	}
	for _, in := range inputs {
		if err := f.Submit(ctx, in); !errors.Is(err, suno.ErrInvalidTokenFormat) {
			t.Errorf("Submit(%q) err = %v; want ErrInvalidTokenFormat", in, err)
		}
		if f.State() != AwaitingUserInput {
			t.Errorf("State() = %s after invalid input; want awaiting input", f.State())
		}
	}
	if store.CheckAuth(ctx) {
		t.Error("invalid input reached the token store")
	}
	f.Cancel()
}

func TestFlowExpiredToken(t *testing.T) {
	ctx := context.Background()
	a, store, surface, _ := newTestAcquirer(t)
	f, _ := a.Start(ctx)
	<-surface.flows

	for _, exp := range []time.Time{
		time.Now().Add(-time.Hour),
		time.Now().Add(30 * time.Second),
	} {
		if err := f.Submit(ctx, tokenExpiring(exp)); !errors.Is(err, suno.ErrInvalidTokenFormat) {
			t.Errorf("Submit() token expiring at %s err = %v; want ErrInvalidTokenFormat", exp, err)
		}
		if f.State() != AwaitingUserInput {
			t.Errorf("State() = %s after expired token; want awaiting input", f.State())
		}
	}
	if store.CheckAuth(ctx) {
		t.Error("expired token reached the token store")
	}

	// The same flow still accepts a usable token
	if err := f.Submit(ctx, validToken()); err != nil {
		t.Fatalf("Submit() err = %v", err)
	}
	if ok, err := f.Wait(ctx); err != nil || !ok {
		t.Fatalf("Wait() = %v, %v; want true, nil", ok, err)
	}
}

func TestFlowDismissed(t *testing.T) {
	ctx := context.Background()
	a, store, surface, _ := newTestAcquirer(t)
	f, _ := a.Start(ctx)
	<-surface.flows

	close(surface.dismiss)
	ok, err := f.Wait(ctx)
	if err != nil || ok {
		t.Fatalf("Wait() = %v, %v; want false, nil", ok, err)
	}
	if f.State() != Cancelled {
		t.Errorf("State() = %s; want cancelled", f.State())
	}
	if store.CheckAuth(ctx) {
		t.Error("CheckAuth() = true after dismissal")
	}
	if a.Active() != nil {
		t.Error("Active() != nil after dismissal")
	}
}

func TestFlowContextCancelled(t *testing.T) {
	a, _, surface, _ := newTestAcquirer(t)
	ctx, cancel := context.WithCancel(context.Background())
	f, _ := a.Start(ctx)
	<-surface.flows
	cancel()

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("flow didn't finish after context cancel")
	}
	if f.State() != Cancelled {
		t.Errorf("State() = %s; want cancelled", f.State())
	}
}

func TestSingleFlow(t *testing.T) {
	ctx := context.Background()
	a, _, surface, opened := newTestAcquirer(t)

	f1, started1 := a.Start(ctx)
	f2, started2 := a.Start(ctx)
	if !started1 || started2 {
		t.Fatalf("Start() started = %v, %v; want true, false", started1, started2)
	}
	if f1 != f2 || f1.ID() != f2.ID() {
		t.Fatalf("Start() returned different flows %s and %s", f1.ID(), f2.ID())
	}
	<-surface.flows
	if surface.focused != 1 {
		t.Errorf("Focus() called %d times; want 1", surface.focused)
	}
	if len(*opened) != 1 {
		t.Errorf("browser opened %d times; want 1", len(*opened))
	}
	if surface.Running() != 1 {
		t.Errorf("%d surfaces running; want 1", surface.Running())
	}
	select {
	case <-surface.flows:
		t.Fatal("a second surface was started")
	default:
	}

	// After finishing, a new flow can start
	f1.Cancel()
	f3, started3 := a.Start(ctx)
	if !started3 || f3 == f1 {
		t.Fatal("Start() after cancel didn't create a new flow")
	}
	f3.Cancel()
}

func TestAcquire(t *testing.T) {
	ctx := context.Background()
	a, store, surface, _ := newTestAcquirer(t)
	token := validToken()
	go func() {
		f := <-surface.flows
		_ = f.Submit(ctx, "garbage")
		_ = f.Submit(ctx, token)
	}()
	ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v; want true, nil", ok, err)
	}
	if !store.CheckAuth(ctx) {
		t.Error("CheckAuth() = false after Acquire")
	}
}

func TestStateString(t *testing.T) {
	if Completed.String() != "completed" || State(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
}
