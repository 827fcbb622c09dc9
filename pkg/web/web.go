package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/sunoplayer/pkg/player"
	"github.com/igolaizola/sunoplayer/pkg/suno"
)

type Config struct {
	Debug       bool
	Addr        string
	Credentials map[string]string
}

// Backend is the player application driven by the server.
type Backend interface {
	LoadTracks(ctx context.Context, liked bool, page int) ([]suno.Track, error)
	Auth(ctx context.Context) (*suno.Credential, error)
	SetToken(ctx context.Context, raw string) error
	Logout(ctx context.Context) error
	Player() *player.Engine
}

// Serve starts the control server and blocks until ctx is done.
func Serve(ctx context.Context, cfg *Config, b Backend) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: Handler(cfg, b),
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("Starting server on %s", note)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v\n", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: couldn't shutdown server: %w", err)
	}
	return nil
}

type trackPage struct {
	Page    int          `json:"page"`
	HasMore bool         `json:"has_more"`
	Tracks  []suno.Track `json:"tracks"`
}

type playerState struct {
	player.State
	Position string `json:"position"`
	Duration string `json:"duration"`
}

type authStatus struct {
	Authenticated bool       `json:"authenticated"`
	Expiry        *time.Time `json:"expiry,omitempty"`
}

// Handler returns the router for the control API.
func Handler(cfg *Config, b Backend) http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(60 * time.Second))

	if len(cfg.Credentials) > 0 {
		mux.Use(middleware.BasicAuth("private", cfg.Credentials))
	}
	if cfg.Debug {
		mux.Use(middleware.Logger)
	}

	e := b.Player()

	mux.Get("/api/tracks", func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 0 {
			page = 0
		}
		liked := r.URL.Query().Get("liked") == "true"
		tracks, err := b.LoadTracks(r.Context(), liked, page)
		if err != nil {
			writeError(w, err)
			return
		}
		if tracks == nil {
			tracks = []suno.Track{}
		}
		writeJSON(w, http.StatusOK, &trackPage{
			Page:    page,
			HasMore: suno.HasMore(len(tracks)),
			Tracks:  tracks,
		})
	})

	mux.Get("/api/player", func(w http.ResponseWriter, r *http.Request) {
		writeState(w, e)
	})
	transport := map[string]func() error{
		"toggle":   e.TogglePlay,
		"next":     e.Next,
		"previous": e.Previous,
		"repeat": func() error {
			e.ToggleRepeat()
			return nil
		},
	}
	for name, fn := range transport {
		fn := fn
		mux.Post("/api/player/"+name, func(w http.ResponseWriter, r *http.Request) {
			if err := fn(); err != nil {
				writeError(w, err)
				return
			}
			writeState(w, e)
		})
	}
	mux.Post("/api/player/play/{index}", func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "invalid index", http.StatusBadRequest)
			return
		}
		if err := e.PlayTrack(index); err != nil {
			writeError(w, err)
			return
		}
		writeState(w, e)
	})
	mux.Post("/api/player/like/{index}", func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "invalid index", http.StatusBadRequest)
			return
		}
		liked, err := e.ToggleLike(index)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
	})
	mux.Post("/api/player/seek", func(w http.ResponseWriter, r *http.Request) {
		fraction, err := strconv.ParseFloat(r.URL.Query().Get("fraction"), 64)
		if err != nil {
			http.Error(w, "invalid fraction", http.StatusBadRequest)
			return
		}
		if err := e.Seek(fraction); err != nil {
			writeError(w, err)
			return
		}
		writeState(w, e)
	})

	mux.Get("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		cred, err := b.Auth(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		status := &authStatus{}
		if cred != nil {
			status.Authenticated = true
			status.Expiry = &cred.Expiry
		}
		writeJSON(w, http.StatusOK, status)
	})
	mux.Post("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := b.SetToken(r.Context(), req.Token); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Delete("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		if err := b.Logout(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func writeState(w http.ResponseWriter, e *player.Engine) {
	s := e.State()
	out := &playerState{
		State:    s,
		Position: player.FormatTime(e.Position().Seconds()),
		Duration: player.FormatTime(0),
	}
	if s.Track != nil {
		out.Duration = player.FormatTime(s.Track.Duration)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("couldn't encode response:", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case suno.IsUnauthorized(err):
		status = http.StatusUnauthorized
	case errors.Is(err, suno.ErrInvalidTokenFormat):
		status = http.StatusBadRequest
	case errors.Is(err, player.ErrOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, player.ErrEmpty), errors.Is(err, player.ErrNoAudio):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
