package player

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/igolaizola/sunoplayer/pkg/suno"
)

var (
	ErrEmpty      = errors.New("player: no tracks")
	ErrOutOfRange = errors.New("player: track index out of range")
	ErrNoAudio    = errors.New("player: audio unavailable for this track")
)

// restartAfter is how far into a track previous restarts it instead of
// going back.
const restartAfter = 3 * time.Second

// Media is the single audio output driven by the engine.
type Media interface {
	Load(url string) error
	Play() error
	Pause() error
	Seek(time.Duration) error
	Position() time.Duration
	SetLoop(bool)
}

// State is a snapshot of the playback cursor.
type State struct {
	Index   int         `json:"index"`
	Playing bool        `json:"playing"`
	Repeat  bool        `json:"repeat"`
	Track   *suno.Track `json:"track,omitempty"`
	Total   int         `json:"total"`
}

// Engine sequences playback over the active track list.
type Engine struct {
	media  Media
	notify func(string)

	lck       sync.Mutex
	tracks    []suno.Track
	index     int
	playing   bool
	repeat    bool
	listeners []func(State)
}

type Config struct {
	Media Media
	// Notify receives user facing notices, defaults to the log.
	Notify func(string)
}

func New(cfg *Config) *Engine {
	notify := cfg.Notify
	if notify == nil {
		notify = func(msg string) { log.Println(msg) }
	}
	return &Engine{
		media:  cfg.Media,
		notify: notify,
		index:  -1,
	}
}

// OnChange registers a listener called after every transition.
func (e *Engine) OnChange(fn func(State)) {
	e.lck.Lock()
	defer e.lck.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) State() State {
	e.lck.Lock()
	defer e.lck.Unlock()
	return e.state()
}

func (e *Engine) state() State {
	s := State{
		Index:   e.index,
		Playing: e.playing,
		Repeat:  e.repeat,
		Total:   len(e.tracks),
	}
	if e.index >= 0 {
		t := e.tracks[e.index]
		s.Track = &t
	}
	return s
}

// emit must be called with the lock held; listeners run after it is
// released by the caller through the returned func.
func (e *Engine) emit() func() {
	s := e.state()
	listeners := append([]func(State){}, e.listeners...)
	return func() {
		for _, fn := range listeners {
			fn(s)
		}
	}
}

// SetTracks replaces the active list. The cursor follows the current track
// if it is still in the list.
func (e *Engine) SetTracks(tracks []suno.Track) {
	e.lck.Lock()
	var current string
	if e.index >= 0 {
		current = e.tracks[e.index].ID
	}
	e.tracks = append([]suno.Track{}, tracks...)
	e.index = -1
	for i, t := range e.tracks {
		if current != "" && t.ID == current {
			e.index = i
			break
		}
	}
	if e.index == -1 && e.playing {
		e.playing = false
		if err := e.media.Pause(); err != nil {
			log.Printf("❌ player: couldn't pause: %v\n", err)
		}
	}
	done := e.emit()
	e.lck.Unlock()
	done()
}

func (e *Engine) Tracks() []suno.Track {
	e.lck.Lock()
	defer e.lck.Unlock()
	return append([]suno.Track{}, e.tracks...)
}

// ToggleLike flips the liked flag of the track at index and returns the
// new value. Only the local list changes.
func (e *Engine) ToggleLike(index int) (bool, error) {
	e.lck.Lock()
	if index < 0 || index >= len(e.tracks) {
		e.lck.Unlock()
		return false, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	e.tracks[index].Liked = !e.tracks[index].Liked
	liked := e.tracks[index].Liked
	done := e.emit()
	e.lck.Unlock()
	done()
	return liked, nil
}

// PlayTrack loads and plays the track at index.
func (e *Engine) PlayTrack(index int) error {
	e.lck.Lock()
	err := e.playTrack(index)
	done := e.emit()
	e.lck.Unlock()
	done()
	return err
}

func (e *Engine) playTrack(index int) error {
	if len(e.tracks) == 0 {
		return ErrEmpty
	}
	if index < 0 || index >= len(e.tracks) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	t := e.tracks[index]
	e.index = index
	if t.Audio == "" {
		if e.playing {
			if err := e.media.Pause(); err != nil {
				log.Printf("❌ player: couldn't pause: %v\n", err)
			}
		}
		e.playing = false
		e.notify(fmt.Sprintf("audio unavailable for this track: %s", t.Title))
		return ErrNoAudio
	}
	if err := e.media.Load(t.Audio); err != nil {
		e.playing = false
		return fmt.Errorf("player: couldn't load %s: %w", t.ID, err)
	}
	if err := e.media.Play(); err != nil {
		e.playing = false
		return fmt.Errorf("player: couldn't play %s: %w", t.ID, err)
	}
	e.playing = true
	return nil
}

// TogglePlay pauses or resumes. From idle it starts the first track.
func (e *Engine) TogglePlay() error {
	e.lck.Lock()
	var err error
	switch {
	case e.index == -1:
		err = e.playTrack(0)
	case e.playing:
		if err = e.media.Pause(); err == nil {
			e.playing = false
		}
	case e.tracks[e.index].Audio == "":
		err = ErrNoAudio
	default:
		if err = e.media.Play(); err == nil {
			e.playing = true
		}
	}
	done := e.emit()
	e.lck.Unlock()
	done()
	return err
}

// Next moves to the following track, wrapping to the first.
func (e *Engine) Next() error {
	e.lck.Lock()
	err := e.next()
	done := e.emit()
	e.lck.Unlock()
	done()
	return err
}

func (e *Engine) next() error {
	if len(e.tracks) == 0 {
		return ErrEmpty
	}
	i := e.index + 1
	if i >= len(e.tracks) {
		i = 0
	}
	return e.playTrack(i)
}

// Previous restarts the current track if it played for more than three
// seconds, otherwise moves back wrapping to the last track.
func (e *Engine) Previous() error {
	e.lck.Lock()
	err := e.previous()
	done := e.emit()
	e.lck.Unlock()
	done()
	return err
}

func (e *Engine) previous() error {
	if len(e.tracks) == 0 {
		return ErrEmpty
	}
	if e.index >= 0 && e.media.Position() > restartAfter {
		return e.media.Seek(0)
	}
	i := e.index - 1
	if i < 0 {
		i = len(e.tracks) - 1
	}
	return e.playTrack(i)
}

// ToggleRepeat switches looping of the current track.
func (e *Engine) ToggleRepeat() bool {
	e.lck.Lock()
	e.repeat = !e.repeat
	e.media.SetLoop(e.repeat)
	repeat := e.repeat
	done := e.emit()
	e.lck.Unlock()
	done()
	return repeat
}

// OnEnded is called by the media when a track finishes. current is
// checked under the engine lock and reports whether the end still applies
// to the loaded source; nil means it does.
func (e *Engine) OnEnded(current func() bool) {
	e.lck.Lock()
	if e.repeat || !e.playing || (current != nil && !current()) {
		e.lck.Unlock()
		return
	}
	if err := e.next(); err != nil && !errors.Is(err, ErrNoAudio) {
		log.Printf("❌ player: couldn't advance: %v\n", err)
	}
	done := e.emit()
	e.lck.Unlock()
	done()
}

// Seek moves to a fraction (0..1) of the current track.
func (e *Engine) Seek(fraction float64) error {
	e.lck.Lock()
	defer e.lck.Unlock()
	if e.index == -1 {
		return ErrEmpty
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	d := time.Duration(e.tracks[e.index].Duration * fraction * float64(time.Second))
	return e.media.Seek(d)
}

// Position returns the elapsed time of the current track.
func (e *Engine) Position() time.Duration {
	return e.media.Position()
}

// FormatTime renders seconds as m:ss.
func FormatTime(seconds float64) string {
	if seconds <= 0 || seconds != seconds {
		return "0:00"
	}
	s := int(seconds)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
