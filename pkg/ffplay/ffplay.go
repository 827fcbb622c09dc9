package ffplay

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"time"
)

// Player plays a single audio URL through an ffplay process. Pausing and
// seeking restart the process at the tracked offset.
type Player struct {
	bin     string
	debug   bool
	now     func() time.Time
	command func(ctx context.Context, name string, args ...string) *exec.Cmd

	lck     sync.Mutex
	url     string
	loop    bool
	playing bool
	offset  time.Duration
	started time.Time
	gen     int
	cancel  context.CancelFunc
	ended   func(current func() bool)
}

type Config struct {
	// Bin is the ffplay binary, defaults to "ffplay".
	Bin   string
	Debug bool
	// OnEnded is called when a track finishes on its own. current reports
	// whether nothing was loaded, played or seeked since.
	OnEnded func(current func() bool)
}

func New(cfg *Config) *Player {
	bin := cfg.Bin
	if bin == "" {
		bin = "ffplay"
	}
	return &Player{
		bin:     bin,
		debug:   cfg.Debug,
		now:     time.Now,
		command: exec.CommandContext,
		ended:   cfg.OnEnded,
	}
}

func (p *Player) log(format string, args ...interface{}) {
	if p.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// OnEnded replaces the ended callback.
func (p *Player) OnEnded(fn func(current func() bool)) {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.ended = fn
}

func (p *Player) Load(url string) error {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.stop()
	p.url = url
	p.offset = 0
	p.playing = false
	return nil
}

func (p *Player) Play() error {
	p.lck.Lock()
	defer p.lck.Unlock()
	if p.url == "" {
		return fmt.Errorf("ffplay: no source loaded")
	}
	if p.playing {
		return nil
	}
	return p.start()
}

func (p *Player) Pause() error {
	p.lck.Lock()
	defer p.lck.Unlock()
	if !p.playing {
		return nil
	}
	p.offset = p.position()
	p.stop()
	p.playing = false
	return nil
}

func (p *Player) Seek(d time.Duration) error {
	p.lck.Lock()
	defer p.lck.Unlock()
	if d < 0 {
		d = 0
	}
	p.offset = d
	if !p.playing {
		p.gen++
		return nil
	}
	p.stop()
	return p.start()
}

func (p *Player) Position() time.Duration {
	p.lck.Lock()
	defer p.lck.Unlock()
	return p.position()
}

func (p *Player) SetLoop(loop bool) {
	p.lck.Lock()
	defer p.lck.Unlock()
	if p.loop == loop {
		return
	}
	p.loop = loop
	if !p.playing {
		return
	}
	p.offset = p.position()
	p.stop()
	if err := p.start(); err != nil {
		log.Printf("❌ ffplay: couldn't restart: %v\n", err)
	}
}

// Close stops any running process.
func (p *Player) Close() error {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.stop()
	p.playing = false
	return nil
}

func (p *Player) position() time.Duration {
	if !p.playing {
		return p.offset
	}
	return p.offset + p.now().Sub(p.started)
}

func (p *Player) args() []string {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	if p.offset > 0 {
		args = append(args, "-ss", toText(p.offset))
	}
	if p.loop {
		args = append(args, "-loop", "0")
	}
	return append(args, p.url)
}

// start must be called with the lock held.
func (p *Player) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	args := p.args()
	cmd := p.command(ctx, p.bin, args...)
	if err := cmd.Start(); err != nil {
		cancel()
		p.playing = false
		return fmt.Errorf("ffplay: couldn't start: %w", err)
	}
	p.log("ffplay: started %v", args)
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.started = p.now()
	p.playing = true
	go p.wait(cmd, gen)
	return nil
}

// stop must be called with the lock held.
func (p *Player) stop() {
	p.gen++
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
}

func (p *Player) wait(cmd *exec.Cmd, gen int) {
	err := cmd.Wait()
	p.lck.Lock()
	if gen != p.gen {
		// Stopped on purpose.
		p.lck.Unlock()
		return
	}
	if err != nil {
		log.Printf("❌ ffplay: process exited: %v\n", err)
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.playing = false
	p.offset = 0
	ended := p.ended
	p.lck.Unlock()
	if ended != nil {
		ended(func() bool {
			p.lck.Lock()
			defer p.lck.Unlock()
			return p.gen == gen
		})
	}
}

func toText(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(int(d.Minutes())*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
