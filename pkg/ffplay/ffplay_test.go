package ffplay

import (
	"context"
	"os"
	"os/exec"
	"reflect"
	"testing"
	"time"
)

// TestHelperProcess stands in for ffplay. It exits immediately unless
// FFPLAY_HELPER_BLOCK is set.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("FFPLAY_HELPER") != "1" {
		return
	}
	if os.Getenv("FFPLAY_HELPER_BLOCK") == "1" {
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func helper(block bool) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess", "--")
		cmd.Env = append(os.Environ(), "FFPLAY_HELPER=1")
		if block {
			cmd.Env = append(cmd.Env, "FFPLAY_HELPER_BLOCK=1")
		}
		return cmd
	}
}

func TestArgs(t *testing.T) {
	p := New(&Config{})
	p.url = "https://cdn1.suno.ai/a.mp3"
	want := []string{"-nodisp", "-autoexit", "-loglevel", "error", "https://cdn1.suno.ai/a.mp3"}
	if got := p.args(); !reflect.DeepEqual(got, want) {
		t.Errorf("args() = %v; want %v", got, want)
	}

	p.offset = 75*time.Second + 500*time.Millisecond
	p.loop = true
	want = []string{"-nodisp", "-autoexit", "-loglevel", "error", "-ss", "00:01:15.500", "-loop", "0", "https://cdn1.suno.ai/a.mp3"}
	if got := p.args(); !reflect.DeepEqual(got, want) {
		t.Errorf("args() = %v; want %v", got, want)
	}
}

func TestPosition(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New(&Config{})
	p.command = helper(true)
	p.now = func() time.Time { return now }
	defer func() { _ = p.Close() }()

	if err := p.Play(); err == nil {
		t.Fatal("Play() without source didn't fail")
	}
	if err := p.Load("https://cdn1.suno.ai/a.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(); err != nil {
		t.Fatal(err)
	}
	now = now.Add(10 * time.Second)
	if got := p.Position(); got != 10*time.Second {
		t.Errorf("Position() = %s; want 10s", got)
	}
	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	now = now.Add(10 * time.Second)
	if got := p.Position(); got != 10*time.Second {
		t.Errorf("Position() paused = %s; want 10s", got)
	}
	if err := p.Seek(42 * time.Second); err != nil {
		t.Fatal(err)
	}
	if got := p.Position(); got != 42*time.Second {
		t.Errorf("Position() after seek = %s; want 42s", got)
	}
	if err := p.Load("https://cdn1.suno.ai/b.mp3"); err != nil {
		t.Fatal(err)
	}
	if got := p.Position(); got != 0 {
		t.Errorf("Position() after load = %s; want 0", got)
	}
}

func TestEnded(t *testing.T) {
	ended := make(chan func() bool, 1)
	p := New(&Config{OnEnded: func(current func() bool) { ended <- current }})
	p.command = helper(false)
	if err := p.Load("https://cdn1.suno.ai/a.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(); err != nil {
		t.Fatal(err)
	}
	var current func() bool
	select {
	case current = <-ended:
	case <-time.After(10 * time.Second):
		t.Fatal("ended callback not called")
	}
	if got := p.Position(); got != 0 {
		t.Errorf("Position() after end = %s; want 0", got)
	}
	if !current() {
		t.Error("end reported stale without changes")
	}
	if err := p.Seek(time.Second); err != nil {
		t.Fatal(err)
	}
	if current() {
		t.Error("end still current after seek")
	}
}

func TestStopDoesNotEnd(t *testing.T) {
	ended := make(chan struct{}, 1)
	p := New(&Config{OnEnded: func(func() bool) { ended <- struct{}{} }})
	p.command = helper(true)
	if err := p.Load("https://cdn1.suno.ai/a.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(); err != nil {
		t.Fatal(err)
	}
	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ended:
		t.Fatal("ended callback called after pause")
	case <-time.After(500 * time.Millisecond):
	}
}
