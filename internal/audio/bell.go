package audio

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// ErrPlaybackBlocked means the output cannot make sound, e.g. it is
// redirected to a file or pipe.
var ErrPlaybackBlocked = errors.New("alarm playback blocked: output is not a terminal")

const bell = "\a"

// Bell loops the terminal bell until stopped.
type Bell struct {
	out    io.Writer
	period time.Duration

	// overridable in tests
	canPlay func() bool

	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	position int
}

func NewBell(out io.Writer, period time.Duration) *Bell {
	if period <= 0 {
		period = 2 * time.Second
	}
	return &Bell{
		out:     out,
		period:  period,
		canPlay: func() bool { return isTerminal(out) },
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Play starts the loop. Calling Play while already playing does not restart it.
func (b *Bell) Play() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stop != nil {
		return nil
	}
	if !b.canPlay() {
		return ErrPlaybackBlocked
	}

	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.position = 0
	go b.loop(b.stop, b.done)
	return nil
}

func (b *Bell) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	for {
		b.ring(stop)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// ring counts only for the loop that currently owns the bell.
func (b *Bell) ring(stop chan struct{}) {
	b.mu.Lock()
	if b.stop != stop {
		b.mu.Unlock()
		return
	}
	b.position++
	b.mu.Unlock()
	_, _ = io.WriteString(b.out, bell)
}

// Stop silences the bell and rewinds the loop position to zero.
func (b *Bell) Stop() {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.position = 0
	b.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Position is the number of rings since the loop last started.
func (b *Bell) Position() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

func (b *Bell) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop != nil
}
