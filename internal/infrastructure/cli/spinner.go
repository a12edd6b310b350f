package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

const clearLine = "\r\033[K"

// Spinner animates a one-line progress indicator on stderr while qw waits on the
// model and the pass-through stages. A nil *Spinner is valid and does nothing.
type Spinner struct {
	frames   []string
	interval time.Duration
	out      io.Writer
	label    string

	// mu serializes frames with writes made through Writer.
	mu     sync.Mutex
	drawn  bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSpinner creates a stopped spinner drawing to out.
func NewSpinner(out io.Writer, label string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 80 * time.Millisecond,
		out:      out,
		label:    label,
	}
}

// Start animates until ctx is done or Stop is called. Starting a running spinner is a no-op.
func (s *Spinner) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.animate(ctx, s.done)
}

func (s *Spinner) animate(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		s.mu.Lock()
		fmt.Fprintf(s.out, "\r%s %s", s.frames[frame%len(s.frames)], s.label)
		s.drawn = true
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.clearLocked()
			s.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

// Stop erases the spinner and waits for the animation to exit. The spinner may be restarted.
func (s *Spinner) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Writer wraps w so every write first erases the current frame. Messages written while
// the spinner runs land on their own line and the next frame redraws below them.
func (s *Spinner) Writer(w io.Writer) io.Writer {
	if s == nil {
		return w
	}
	return &spinnerWriter{spinner: s, out: w}
}

func (s *Spinner) clearLocked() {
	if s.drawn {
		fmt.Fprint(s.out, clearLine)
		s.drawn = false
	}
}

type spinnerWriter struct {
	spinner *Spinner
	out     io.Writer
}

func (w *spinnerWriter) Write(p []byte) (int, error) {
	w.spinner.mu.Lock()
	defer w.spinner.mu.Unlock()
	w.spinner.clearLocked()
	return w.out.Write(p)
}
