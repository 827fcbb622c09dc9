package login

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/igolaizola/sunoplayer/pkg/suno"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrDismissed is returned by a surface closed without a submission.
	ErrDismissed = errors.New("login: dismissed")
	// ErrClosed is returned when submitting to a finished flow.
	ErrClosed = errors.New("login: flow already finished")
)

type State int

const (
	Idle State = iota
	AwaitingUserInput
	Submitted
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingUserInput:
		return "awaiting-input"
	case Submitted:
		return "submitted"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Surface is where the user pastes the token. Run delivers submissions to
// the flow and returns when the flow finishes or the user dismisses it.
type Surface interface {
	Run(ctx context.Context, f *Flow) error
	Focus()
}

type Config struct {
	Store   *suno.TokenStore
	Surface Surface
	// Open launches the external browser, nil disables it.
	Open           func(url string) error
	URL            string
	MinTokenLength int
	Debug          bool
}

// Acquirer runs credential acquisition flows, at most one at a time.
type Acquirer struct {
	store     *suno.TokenStore
	surface   Surface
	open      func(string) error
	url       string
	minLength int
	debug     bool

	lck    sync.Mutex
	active *Flow
}

func New(cfg *Config) *Acquirer {
	u := cfg.URL
	if u == "" {
		u = suno.SignInURL
	}
	minLength := cfg.MinTokenLength
	if minLength == 0 {
		minLength = suno.MinTokenLength
	}
	return &Acquirer{
		store:     cfg.Store,
		surface:   cfg.Surface,
		open:      cfg.Open,
		url:       u,
		minLength: minLength,
		debug:     cfg.Debug,
	}
}

// Active returns the running flow or nil.
func (a *Acquirer) Active() *Flow {
	a.lck.Lock()
	defer a.lck.Unlock()
	return a.active
}

// Start begins a new flow. If one is already running it is brought to the
// foreground and returned with started set to false.
func (a *Acquirer) Start(ctx context.Context) (f *Flow, started bool) {
	a.lck.Lock()
	defer a.lck.Unlock()
	if a.active != nil {
		a.log("login: flow %s already active", a.active.id)
		if a.surface != nil {
			a.surface.Focus()
		}
		return a.active, false
	}

	flowCtx, cancel := context.WithCancel(ctx)
	f = &Flow{
		id:        ulid.Make().String(),
		store:     a.store,
		minLength: a.minLength,
		state:     AwaitingUserInput,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	f.onDone = func() {
		a.lck.Lock()
		defer a.lck.Unlock()
		if a.active == f {
			a.active = nil
		}
	}
	a.active = f
	a.log("login: flow %s started", f.id)

	if a.open != nil {
		if err := a.open(a.url); err != nil {
			log.Printf("❌ login: couldn't open browser: %v\n", err)
		}
	}
	if a.surface != nil {
		go func() {
			err := a.surface.Run(flowCtx, f)
			if err != nil && !errors.Is(err, ErrDismissed) && !errors.Is(err, context.Canceled) {
				log.Printf("❌ login: %v\n", err)
			}
			// The surface is gone, a flow without submission is cancelled
			f.Cancel()
		}()
	}
	return f, true
}

// Acquire starts or joins a flow and waits for its result.
func (a *Acquirer) Acquire(ctx context.Context) (bool, error) {
	f, _ := a.Start(ctx)
	return f.Wait(ctx)
}

func (a *Acquirer) log(format string, args ...interface{}) {
	if a.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Flow is a single credential acquisition.
type Flow struct {
	id        string
	store     *suno.TokenStore
	minLength int
	cancel    context.CancelFunc
	onDone    func()

	lck   sync.Mutex
	state State
	ok    bool
	done  chan struct{}
}

func (f *Flow) ID() string {
	return f.id
}

func (f *Flow) MinTokenLength() int {
	return f.minLength
}

func (f *Flow) State() State {
	f.lck.Lock()
	defer f.lck.Unlock()
	return f.state
}

// Done is closed when the flow completes or is cancelled.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Submit validates and stores a pasted token. Invalid input returns an
// error wrapping suno.ErrInvalidTokenFormat and keeps the flow waiting.
func (f *Flow) Submit(ctx context.Context, raw string) error {
	f.lck.Lock()
	defer f.lck.Unlock()
	if f.state != AwaitingUserInput {
		return ErrClosed
	}
	token := suno.NormalizeToken(raw)
	if err := suno.ValidateToken(token, f.minLength); err != nil {
		return err
	}
	if err := f.store.Check(token); err != nil {
		return err
	}
	f.state = Submitted
	if _, err := f.store.Set(ctx, token); err != nil {
		f.state = AwaitingUserInput
		return fmt.Errorf("login: couldn't store token: %w", err)
	}
	f.finish(Completed, true)
	return nil
}

// Cancel ends the flow without a credential. It does nothing if the flow
// already finished.
func (f *Flow) Cancel() {
	f.lck.Lock()
	defer f.lck.Unlock()
	if f.state == Completed || f.state == Cancelled {
		return
	}
	f.finish(Cancelled, false)
}

// finish must be called with the lock held.
func (f *Flow) finish(state State, ok bool) {
	f.state = state
	f.ok = ok
	close(f.done)
	f.cancel()
	if f.onDone != nil {
		f.onDone()
	}
}

// Wait blocks until the flow finishes and reports whether a credential was
// stored. It only returns an error if ctx is done first.
func (f *Flow) Wait(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-f.done:
	}
	f.lck.Lock()
	defer f.lck.Unlock()
	return f.ok, nil
}
