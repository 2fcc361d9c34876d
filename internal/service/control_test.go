package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/bulk-dispatcher/internal/service"
)

func TestRunStateTransitions(t *testing.T) {
	s := service.NewRunState()
	assert.Equal(t, service.StateRunning, s.State())

	assert.True(t, s.Pause())
	assert.False(t, s.Pause())
	assert.Equal(t, service.StatePaused, s.State())

	assert.True(t, s.Resume())
	assert.False(t, s.Resume())
	assert.Equal(t, service.StateRunning, s.State())

	assert.True(t, s.Cancel())
	assert.False(t, s.Cancel())
	assert.False(t, s.Pause())
	assert.Equal(t, service.StateCancelling, s.State())

	s.MarkDrained()
	assert.Equal(t, service.StateDrained, s.State())
}

func TestWaitBlocksWhilePaused(t *testing.T) {
	s := service.NewRunState()
	require.NoError(t, s.Wait(context.Background()))

	s.Pause()
	released := make(chan error, 1)
	go func() { released <- s.Wait(context.Background()) }()

	select {
	case <-released:
		t.Fatal("Wait returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	s.Resume()
	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait not released by resume")
	}
}

func TestCancelReleasesPausedWaiters(t *testing.T) {
	s := service.NewRunState()
	s.Pause()

	released := make(chan error, 1)
	go func() { released <- s.Wait(context.Background()) }()
	s.Cancel()

	select {
	case err := <-released:
		assert.True(t, errors.Is(err, service.ErrCancelled))
	case <-time.After(time.Second):
		t.Fatal("Wait not released by cancel")
	}
	assert.True(t, errors.Is(s.Wait(context.Background()), service.ErrCancelled))
}

func TestWaitHonoursContext(t *testing.T) {
	s := service.NewRunState()
	s.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestApply(t *testing.T) {
	s := service.NewRunState()

	msg, err := s.Apply("p")
	require.NoError(t, err)
	assert.Equal(t, "[paused]", msg)

	msg, _ = s.Apply(" P ")
	assert.Equal(t, "[already paused]", msg)

	msg, _ = s.Apply("r")
	assert.Equal(t, "[resumed]", msg)

	msg, _ = s.Apply("r")
	assert.Equal(t, "[already running]", msg)

	_, err = s.Apply("x")
	assert.ErrorIs(t, err, service.ErrUnknownCommand)
	assert.Equal(t, service.StateRunning, s.State())

	msg, _ = s.Apply("q")
	assert.Equal(t, "[quit requested, waiting for in-flight sends]", msg)
	assert.True(t, s.Cancelled())
}

func TestListen(t *testing.T) {
	s := service.NewRunState()
	var out bytes.Buffer

	service.Listen(context.Background(), s, service.SliceSource{"p", "", "x", "r", "q"}, &out)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"Control keys: [p]ause, [r]esume, [q]uit",
		"[paused]",
		service.ErrUnknownCommand.Error(),
		"[resumed]",
		"[quit requested, waiting for in-flight sends]",
	}, lines)
	assert.True(t, s.Cancelled())
}

func TestListenFromReader(t *testing.T) {
	s := service.NewRunState()
	var out bytes.Buffer

	service.Listen(context.Background(), s, service.LineSource{R: strings.NewReader("p\n")}, &out)

	assert.Equal(t, service.StatePaused, s.State())
	assert.Contains(t, out.String(), "[paused]")
}
