package sunoplayer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/igolaizola/sunoplayer/pkg/ffplay"
	"github.com/igolaizola/sunoplayer/pkg/fhttp"
	"github.com/igolaizola/sunoplayer/pkg/login"
	"github.com/igolaizola/sunoplayer/pkg/login/prompt"
	"github.com/igolaizola/sunoplayer/pkg/player"
	"github.com/igolaizola/sunoplayer/pkg/storage"
	"github.com/igolaizola/sunoplayer/pkg/suno"
	"github.com/pkg/browser"
)

// ErrSessionExpired is returned when the API rejects the stored credential.
// The credential is cleared before it is returned.
var ErrSessionExpired = errors.New("sunoplayer: session expired")

type Config struct {
	Debug       bool
	Proxy       string
	Wait        time.Duration
	Timeout     time.Duration
	Fingerprint bool
	APIBase     string

	// TokenFile is used when DBType is empty.
	TokenFile string
	DBType    string
	DBConn    string
	Account   string

	FFPlay     string
	Accessible bool

	// Overrides used by tests.
	client  *http.Client
	media   player.Media
	surface login.Surface
	open    func(string) error
	now     func() time.Time
	output  io.Writer
}

// App ties the token store, the feed client, the login flow and the
// playback engine together.
type App struct {
	tokens   *suno.TokenStore
	client   *suno.Client
	acquirer *login.Acquirer
	engine   *player.Engine
	output   io.Writer
	closers  []func() error
}

// New creates an app from the config. Close must be called when done.
func New(ctx context.Context, cfg *Config) (*App, error) {
	a := &App{
		output: cfg.output,
	}
	if a.output == nil {
		a.output = os.Stdout
	}

	durable, err := a.durable(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.tokens = suno.NewTokenStore(&suno.StoreConfig{
		Durable: durable,
		Now:     cfg.now,
		Debug:   cfg.Debug,
	})

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	a.client = suno.New(&suno.Config{
		Wait:    cfg.Wait,
		Debug:   cfg.Debug,
		Client:  httpClient,
		Store:   a.tokens,
		APIBase: cfg.APIBase,
		Now:     cfg.now,
	})

	media := cfg.media
	var ff *ffplay.Player
	if media == nil {
		ff = ffplay.New(&ffplay.Config{
			Bin:   cfg.FFPlay,
			Debug: cfg.Debug,
		})
		a.closers = append(a.closers, ff.Close)
		media = ff
	}
	a.engine = player.New(&player.Config{
		Media:  media,
		Notify: a.Notify,
	})
	if ff != nil {
		ff.OnEnded(a.engine.OnEnded)
	}

	surface := cfg.surface
	if surface == nil {
		surface = &prompt.Surface{Accessible: cfg.Accessible}
	}
	open := cfg.open
	if open == nil {
		open = browser.OpenURL
	}
	a.acquirer = login.New(&login.Config{
		Store:   a.tokens,
		Surface: surface,
		Open:    open,
		Debug:   cfg.Debug,
	})
	return a, nil
}

func (a *App) durable(ctx context.Context, cfg *Config) (suno.Durable, error) {
	account := cfg.Account
	if account == "" {
		account = "default"
	}
	if cfg.DBType != "" {
		store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return nil, fmt.Errorf("sunoplayer: couldn't create orm store: %w", err)
		}
		if err := store.Start(ctx); err != nil {
			return nil, fmt.Errorf("sunoplayer: couldn't start orm store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("sunoplayer: couldn't migrate orm store: %w", err)
		}
		return store.NewTokenStore(account), nil
	}
	path := cfg.TokenFile
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("sunoplayer: couldn't get config dir: %w", err)
		}
		path = filepath.Join(dir, "sunoplayer", account+".json")
	}
	return suno.NewFileStore(path), nil
}

func newHTTPClient(cfg *Config) (*http.Client, error) {
	if cfg.client != nil {
		return cfg.client, nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if cfg.Fingerprint {
		return fhttp.NewClient(timeout, cfg.Proxy)
	}
	httpClient := &http.Client{
		Timeout: timeout,
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("sunoplayer: invalid proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	return httpClient, nil
}

// Close releases the media output.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify shows a transient notice to the user.
func (a *App) Notify(msg string) {
	fmt.Fprintf(a.output, "🔔 %s\n", msg)
}

func (a *App) Tokens() *suno.TokenStore {
	return a.tokens
}

func (a *App) Player() *player.Engine {
	return a.engine
}

// Auth returns the current credential or nil if there isn't a valid one.
func (a *App) Auth(ctx context.Context) (*suno.Credential, error) {
	cred, err := a.tokens.Get(ctx)
	if errors.Is(err, suno.ErrUnauthenticated) {
		return nil, nil
	}
	return cred, err
}

// Login runs the interactive acquisition flow. It reports false if the
// user cancelled.
func (a *App) Login(ctx context.Context) (bool, error) {
	return a.acquirer.Acquire(ctx)
}

// SetToken stores a pasted token with the same validation as the login flow.
func (a *App) SetToken(ctx context.Context, raw string) error {
	token := suno.NormalizeToken(raw)
	if err := suno.ValidateToken(token, suno.MinTokenLength); err != nil {
		return err
	}
	if err := a.tokens.Check(token); err != nil {
		return err
	}
	if _, err := a.tokens.Set(ctx, token); err != nil {
		return err
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	return a.tokens.Clear(ctx)
}

// LoadTracks fetches a feed page and makes it the active playlist. If the
// session was rejected the stored credential is cleared and
// ErrSessionExpired is returned. Any other failure loads the demo tracks.
func (a *App) LoadTracks(ctx context.Context, liked bool, page int) ([]suno.Track, error) {
	tracks, err := a.client.FetchTracks(ctx, liked, page)
	switch {
	case err == nil:
	case suno.IsUnauthorized(err):
		if cerr := a.tokens.Clear(ctx); cerr != nil {
			log.Printf("❌ sunoplayer: couldn't clear token: %v\n", cerr)
		}
		a.Notify("Session expired, please log in again")
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	default:
		log.Printf("❌ sunoplayer: %v\n", err)
		a.Notify("Couldn't load tracks, showing demo tracks")
		tracks = DemoTracks()
	}
	a.engine.SetTracks(tracks)
	return tracks, nil
}

// DemoTracks returns placeholder tracks without audio.
func DemoTracks() []suno.Track {
	return []suno.Track{
		{ID: "demo1", Title: "Electric Dreams", Artist: "Suno AI", Duration: 180, Liked: true, Status: "complete"},
		{ID: "demo2", Title: "Neon Nights", Artist: "Suno AI", Duration: 210, Status: "complete"},
		{ID: "demo3", Title: "Synthwave Sunset", Artist: "Suno AI", Duration: 195, Liked: true, Status: "complete"},
	}
}

// WatchExpiry notifies the user before and when the session expires.
func (a *App) WatchExpiry(ctx context.Context) {
	suno.WatchExpiry(ctx, a.tokens, time.Minute, 5*time.Minute, func(e suno.ExpiryEvent) {
		if e.Expired {
			a.Notify("Session expired, please log in again")
			return
		}
		a.Notify(fmt.Sprintf("Session expires in %s", e.Left.Round(time.Second)))
	})
}
