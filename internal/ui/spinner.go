package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// LineSpinner animates a single status line while the CLI waits on the
// network, before the room view takes over the terminal.
type LineSpinner struct {
	w        io.Writer
	frames   []string
	interval time.Duration

	mu      sync.Mutex
	message string

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newLineSpinner(w io.Writer, s spinner.Spinner, interval time.Duration, message string) *LineSpinner {
	return &LineSpinner{
		w:        w,
		frames:   s.Frames,
		interval: interval,
		message:  message,
		done:     make(chan struct{}),
	}
}

// NewConnectionSpinner uses the Globe frames for relay and ICE setup.
func NewConnectionSpinner(message string) *LineSpinner {
	return newLineSpinner(output, spinner.Globe, 180*time.Millisecond, message)
}

// NewWaitingSpinner uses the Points frames for waits on other participants.
func NewWaitingSpinner(message string) *LineSpinner {
	return newLineSpinner(output, spinner.Points, 100*time.Millisecond, message)
}

func (s *LineSpinner) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.w, "\r%s %s", SpinnerStyle.Render(s.frames[i%len(s.frames)]), msg)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the animation and clears the line. Safe to call twice.
func (s *LineSpinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		fmt.Fprint(s.w, "\r\033[K")
	})
}

func (s *LineSpinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.w, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *LineSpinner) Error(message string) {
	s.Stop()
	fmt.Fprintf(s.w, "%s %s\n", ErrorStyle.Render(IconError), message)
}

func (s *LineSpinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// RunConnectionSpinner starts a connection spinner and returns it.
func RunConnectionSpinner(message string) *LineSpinner {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp
}
