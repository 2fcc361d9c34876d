// internal/service/control.go
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var (
	// ErrCancelled is returned by RunState.Wait once the run is cancelled.
	ErrCancelled = errors.New("dispatch cancelled")
	// ErrUnknownCommand is returned by RunState.Apply for unrecognized input.
	ErrUnknownCommand = errors.New("unknown command, use p (pause), r (resume), q (quit)")
)

type State string

const (
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateCancelling State = "cancelling"
	StateDrained    State = "drained"
)

// RunState is the pause/cancel control shared by the engine, its workers and
// the command listener of a single run. Create a new one per run.
type RunState struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	drained   bool
	gate      chan struct{} // closed while running, open while paused
	done      chan struct{} // closed on cancel
}

func NewRunState() *RunState {
	gate := make(chan struct{})
	close(gate)
	return &RunState{gate: gate, done: make(chan struct{})}
}

// Pause closes the gate. It reports false if the run was already paused or is
// past the running phase.
func (s *RunState) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.cancelled || s.drained {
		return false
	}
	s.paused = true
	s.gate = make(chan struct{})
	return true
}

// Resume reopens the gate. It reports false if the run was not paused.
func (s *RunState) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused || s.cancelled || s.drained {
		return false
	}
	s.paused = false
	close(s.gate)
	return true
}

// Cancel stops new submissions and releases paused waiters. It reports false
// if the run was already cancelled or drained.
func (s *RunState) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.drained {
		return false
	}
	s.cancelled = true
	close(s.done)
	return true
}

// MarkDrained moves the run into its terminal state.
func (s *RunState) MarkDrained() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drained = true
}

func (s *RunState) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Done is closed once the run is cancelled.
func (s *RunState) Done() <-chan struct{} {
	return s.done
}

func (s *RunState) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.drained:
		return StateDrained
	case s.cancelled:
		return StateCancelling
	case s.paused:
		return StatePaused
	}
	return StateRunning
}

// Wait blocks while the run is paused. It returns ErrCancelled once the run
// is cancelled, and ctx.Err() if ctx ends first.
func (s *RunState) Wait(ctx context.Context) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()

	select {
	case <-s.done:
		return ErrCancelled
	default:
	}

	select {
	case <-gate:
	case <-s.done:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Apply executes one operator command and returns the acknowledgement to show.
func (s *RunState) Apply(cmd string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "p", "pause":
		if s.Pause() {
			return "[paused]", nil
		}
		return "[already paused]", nil
	case "r", "resume":
		if s.Resume() {
			return "[resumed]", nil
		}
		return "[already running]", nil
	case "q", "quit", "cancel":
		s.Cancel()
		return "[quit requested, waiting for in-flight sends]", nil
	}
	return "", ErrUnknownCommand
}

// CommandSource yields operator commands, one per line. The channel is closed
// when the source is exhausted.
type CommandSource interface {
	Commands(ctx context.Context) <-chan string
}

// LineSource reads commands from r, one per line.
type LineSource struct {
	R io.Reader
}

func (l LineSource) Commands(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(l.R)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ChanSource forwards lines from an existing channel, e.g. a console reader
// shared with interactive prompts. Lines are only taken while listening.
type ChanSource <-chan string

func (c ChanSource) Commands(ctx context.Context) <-chan string {
	return c
}

// SliceSource replays a fixed list of commands.
type SliceSource []string

func (s SliceSource) Commands(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for _, c := range s {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Listen applies commands from src to state until the source ends, ctx ends
// or the run is cancelled. Unknown commands print a diagnostic and change nothing.
func Listen(ctx context.Context, state *RunState, src CommandSource, out io.Writer) {
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintln(out, "Control keys: [p]ause, [r]esume, [q]uit")

	cmds := src.Commands(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-state.Done():
			return
		case line, ok := <-cmds:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			msg, err := state.Apply(line)
			if err != nil {
				fmt.Fprintln(out, err.Error())
				continue
			}
			fmt.Fprintln(out, msg)
		}
	}
}
