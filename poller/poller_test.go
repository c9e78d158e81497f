//go:build unit

package poller_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Darkness4/bili-auto-quality/poller"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// manualScheduler delivers a tick each time the test sends one.
type manualScheduler struct {
	ticks   chan time.Time
	created atomic.Int32
	stopped atomic.Int32
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{ticks: make(chan time.Time)}
}

func (s *manualScheduler) Every(time.Duration) poller.Ticker {
	s.created.Add(1)
	return &manualTicker{s: s}
}

type manualTicker struct {
	s *manualScheduler
}

func (t *manualTicker) C() <-chan time.Time {
	return t.s.ticks
}

func (t *manualTicker) Stop() {
	t.s.stopped.Add(1)
}

// tickUntil sends ticks until done is closed.
func (s *manualScheduler) tickUntil(done <-chan struct{}) {
	for {
		select {
		case s.ticks <- time.Now():
		case <-done:
			return
		}
	}
}

func runWithTicks(
	t *testing.T,
	p *poller.Poller,
	s *manualScheduler,
	attempt poller.Attempt,
) poller.Result {
	t.Helper()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.tickUntil(done)
	}()
	result := p.Run(context.Background(), attempt)
	close(done)
	wg.Wait()
	return result
}

func TestRunImmediateSuccess(t *testing.T) {
	// Arrange
	s := newManualScheduler()
	p := poller.New(poller.DefaultPolicy, poller.WithScheduler(s))
	var calls atomic.Int32

	// Act
	result := p.Run(context.Background(), func(context.Context) bool {
		calls.Add(1)
		return true
	})

	// Assert
	require.Equal(t, poller.Result{State: poller.StateSucceeded}, result)
	require.EqualValues(t, 1, calls.Load())
	require.EqualValues(t, 0, s.created.Load(), "no ticker should be started")
}

func TestRunStopsOnFirstSuccess(t *testing.T) {
	// Arrange
	s := newManualScheduler()
	p := poller.New(poller.DefaultPolicy, poller.WithScheduler(s))
	var calls atomic.Int32

	// Act
	result := runWithTicks(t, p, s, func(context.Context) bool {
		return calls.Add(1) == 4
	})

	// Assert
	require.Equal(t, poller.StateSucceeded, result.State)
	require.Equal(t, 3, result.Attempts)
	require.EqualValues(t, 4, calls.Load())
	require.EqualValues(t, 1, s.stopped.Load())
}

func TestRunExhausted(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	s := newManualScheduler()
	var states []poller.State
	p := poller.New(
		poller.Policy{Interval: 500 * time.Millisecond, MaxAttempts: 40},
		poller.WithScheduler(s),
		poller.WithLogger(logger),
		poller.WithStateHook(func(st poller.State) { states = append(states, st) }),
	)
	var calls atomic.Int32

	// Act
	result := runWithTicks(t, p, s, func(context.Context) bool {
		calls.Add(1)
		return false
	})

	// Assert
	require.Equal(t, poller.Result{State: poller.StateExhausted, Attempts: 40}, result)
	require.EqualValues(t, 41, calls.Load(), "entry attempt plus one per tick")
	require.EqualValues(t, 1, s.stopped.Load())
	require.Equal(t, 1, strings.Count(buf.String(), "reached max attempts"))
	require.Equal(t, []poller.State{poller.StatePolling, poller.StateExhausted}, states)
}

func TestRunCanceled(t *testing.T) {
	// Arrange
	s := newManualScheduler()
	p := poller.New(poller.DefaultPolicy, poller.WithScheduler(s))
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	// Act
	result := p.Run(ctx, func(context.Context) bool {
		calls.Add(1)
		cancel()
		return false
	})

	// Assert
	require.Equal(t, poller.StateCanceled, result.State)
	require.EqualValues(t, 1, calls.Load())
	require.EqualValues(t, 1, s.stopped.Load())
}

func TestRunRealScheduler(t *testing.T) {
	// Arrange
	p := poller.New(poller.Policy{Interval: time.Millisecond, MaxAttempts: 3})
	var calls atomic.Int32

	// Act
	result := p.Run(context.Background(), func(context.Context) bool {
		calls.Add(1)
		return false
	})

	// Assert
	require.Equal(t, poller.Result{State: poller.StateExhausted, Attempts: 3}, result)
	require.EqualValues(t, 4, calls.Load())
}

func TestStateTerminal(t *testing.T) {
	require.True(t, poller.StateSucceeded.Terminal())
	require.True(t, poller.StateExhausted.Terminal())
	require.True(t, poller.StateCanceled.Terminal())
	require.False(t, poller.StatePolling.Terminal())
	require.False(t, poller.StateIdle.Terminal())
}
