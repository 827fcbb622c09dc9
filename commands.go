package sunoplayer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/igolaizola/sunoplayer/pkg/player"
	"github.com/igolaizola/sunoplayer/pkg/suno"
	"github.com/igolaizola/sunoplayer/pkg/web"
	"gopkg.in/yaml.v3"
)

// Login opens the sign-in page and asks for the session token.
func Login(ctx context.Context, cfg *Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	ok, err := a.Login(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("sunoplayer: login cancelled")
	}
	cred, err := a.Auth(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("%w: token expired right after login", ErrSessionExpired)
	}
	log.Printf("logged in, session valid until %s\n", cred.Expiry.Format(time.RFC3339))
	return nil
}

// SetToken stores a token without the interactive flow.
func SetToken(ctx context.Context, cfg *Config, token string) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if token == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("sunoplayer: couldn't read token: %w", err)
		}
		token = string(b)
	}
	return a.SetToken(ctx, token)
}

func Logout(ctx context.Context, cfg *Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Logout(ctx); err != nil {
		return err
	}
	log.Println("logged out")
	return nil
}

// AuthStatus is the output of the status command.
type AuthStatus struct {
	Authenticated bool      `json:"authenticated" yaml:"authenticated"`
	Expiry        time.Time `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	Subject       string    `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// Status prints whether there is a usable session.
func Status(ctx context.Context, cfg *Config, format string) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	cred, err := a.Auth(ctx)
	if err != nil {
		return err
	}
	status := &AuthStatus{}
	if cred != nil {
		status.Authenticated = true
		status.Expiry = cred.Expiry
		status.Subject = cred.Subject
	}
	if format == "" || format == "text" {
		if !status.Authenticated {
			fmt.Fprintln(a.output, "not logged in")
			return nil
		}
		fmt.Fprintf(a.output, "logged in until %s\n", status.Expiry.Format(time.RFC3339))
		return nil
	}
	return write(a.output, format, status)
}

// Tracks prints a page of the feed.
func Tracks(ctx context.Context, cfg *Config, liked bool, page int, format string) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	tracks, err := a.LoadTracks(ctx, liked, page)
	if err != nil {
		return err
	}
	if format == "" || format == "text" {
		for i, t := range tracks {
			fmt.Fprintf(a.output, "%3d. %s - %s [%s]\n", i+1, t.Title, t.Artist, player.FormatTime(t.Duration))
		}
		if suno.HasMore(len(tracks)) {
			fmt.Fprintf(a.output, "more tracks on page %d\n", page+1)
		}
		return nil
	}
	return write(a.output, format, tracks)
}

func write(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("sunoplayer: couldn't encode json: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("sunoplayer: couldn't encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("sunoplayer: unknown output format %q", format)
	}
	return nil
}

const playHelp = `commands: enter/t toggle, n next, p previous, r repeat, l [number] like, ls list, s <0-100> seek, <number> play, q quit`

// Play loads the feed and plays it, reading transport commands from input.
func Play(ctx context.Context, cfg *Config, liked, pick bool, input io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.tokens.CheckAuth(ctx) {
		ok, err := a.Login(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("sunoplayer: login cancelled")
		}
	}
	tracks, err := a.LoadTracks(ctx, liked, 0)
	if err != nil {
		return err
	}
	go a.WatchExpiry(ctx)

	e := a.Player()
	e.OnChange(func(s player.State) {
		if s.Track == nil {
			return
		}
		icon := "⏸"
		if s.Playing {
			icon = "▶"
		}
		repeat := ""
		if s.Repeat {
			repeat = " 🔁"
		}
		fmt.Fprintf(a.output, "%s %d/%d %s - %s [%s]%s\n", icon, s.Index+1, s.Total, s.Track.Title, s.Track.Artist, player.FormatTime(s.Track.Duration), repeat)
	})

	start := 0
	if pick {
		start, err = pickTrack(ctx, tracks, cfg.Accessible)
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(a.output, playHelp)
	if err := e.PlayTrack(start); err != nil {
		log.Printf("❌ %v\n", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := a.command(line)
			if err != nil {
				log.Printf("❌ %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// command runs a single transport command typed by the user.
func (a *App) command(line string) (bool, error) {
	e := a.Player()
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, e.TogglePlay()
	}
	switch fields[0] {
	case "t", "toggle":
		return false, e.TogglePlay()
	case "n", "next":
		return false, e.Next()
	case "p", "prev", "previous":
		return false, e.Previous()
	case "r", "repeat":
		e.ToggleRepeat()
		return false, nil
	case "l", "like":
		index := e.State().Index
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return false, fmt.Errorf("sunoplayer: invalid track number %q", fields[1])
			}
			index = n - 1
		}
		liked, err := e.ToggleLike(index)
		if err != nil {
			return false, err
		}
		if liked {
			fmt.Fprintln(a.output, "♥ liked")
		} else {
			fmt.Fprintln(a.output, "♡ unliked")
		}
		return false, nil
	case "ls", "list":
		current := e.State().Index
		for i, t := range e.Tracks() {
			mark, heart := " ", " "
			if i == current {
				mark = ">"
			}
			if t.Liked {
				heart = "♥"
			}
			fmt.Fprintf(a.output, "%s%3d. %s %s - %s [%s]\n", mark, i+1, heart, t.Title, t.Artist, player.FormatTime(t.Duration))
		}
		return false, nil
	case "s", "seek":
		if len(fields) < 2 {
			return false, errors.New("sunoplayer: missing seek percentage")
		}
		pct, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return false, fmt.Errorf("sunoplayer: invalid seek percentage %q", fields[1])
		}
		return false, e.Seek(pct / 100)
	case "q", "quit", "exit":
		return true, nil
	case "h", "help":
		fmt.Fprintln(a.output, playHelp)
		return false, nil
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return false, fmt.Errorf("sunoplayer: unknown command %q", fields[0])
	}
	return false, e.PlayTrack(n - 1)
}

func pickTrack(ctx context.Context, tracks []suno.Track, accessible bool) (int, error) {
	if len(tracks) == 0 {
		return 0, nil
	}
	var options []huh.Option[int]
	for i, t := range tracks {
		label := fmt.Sprintf("%s - %s [%s]", t.Title, t.Artist, player.FormatTime(t.Duration))
		options = append(options, huh.NewOption(label, i))
	}
	var selected int
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title("Choose a track").
			Options(options...).
			Value(&selected),
	)).WithAccessible(accessible)
	if err := form.RunWithContext(ctx); err != nil {
		return 0, fmt.Errorf("sunoplayer: couldn't pick track: %w", err)
	}
	return selected, nil
}

// Serve runs the local control server.
func Serve(ctx context.Context, cfg *Config, webCfg *web.Config, liked bool) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.LoadTracks(ctx, liked, 0); err != nil {
		log.Printf("❌ %v\n", err)
	}
	go a.WatchExpiry(ctx)
	return web.Serve(ctx, webCfg, a)
}
