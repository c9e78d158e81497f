//go:build unit

package player_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Darkness4/bili-auto-quality/player"
	"github.com/Darkness4/bili-auto-quality/quality"
	"github.com/stretchr/testify/require"
)

type call struct {
	method  string
	quality quality.Quality
}

type fakePlayer struct {
	absent  bool
	methods map[string]error
	async   map[string]bool
	outcome error

	mu    sync.Mutex
	calls []call
}

func (p *fakePlayer) Present(context.Context) (bool, error) {
	return !p.absent, nil
}

func (p *fakePlayer) Has(_ context.Context, method string) (bool, error) {
	_, ok := p.methods[method]
	return ok, nil
}

func (p *fakePlayer) record(method string, q quality.Quality) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{method: method, quality: q})
	return p.methods[method]
}

func (p *fakePlayer) Call(_ context.Context, method string, q quality.Quality) error {
	if p.async[method] {
		return errors.New("called an async method synchronously")
	}
	return p.record(method, q)
}

func (p *fakePlayer) Request(
	_ context.Context,
	method string,
	q quality.Quality,
) (<-chan error, error) {
	if err := p.record(method, q); err != nil {
		return nil, err
	}
	out := make(chan error, 1)
	out <- p.outcome
	close(out)
	return out, nil
}

func (p *fakePlayer) SupportedQualities(context.Context) ([]quality.Quality, error) {
	return nil, player.ErrMethodNotFound
}

func (p *fakePlayer) Calls() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]call(nil), p.calls...)
}

func TestApplierApply(t *testing.T) {
	tests := []struct {
		player   *fakePlayer
		expected bool
		calls    []call
		title    string
	}{
		{
			player: &fakePlayer{
				methods: map[string]error{"requestQuality": nil},
				async:   map[string]bool{"requestQuality": true},
			},
			expected: true,
			calls:    []call{{"requestQuality", 80}},
			title:    "Only the async method",
		},
		{
			player: &fakePlayer{
				methods: map[string]error{"requestQuality": nil, "setQuality": nil},
				async:   map[string]bool{"requestQuality": true},
				outcome: errors.New("rejected"),
			},
			expected: true,
			calls:    []call{{"requestQuality", 80}},
			title:    "Rejected async outcome is only logged",
		},
		{
			player: &fakePlayer{
				methods: map[string]error{"setPlaybackQuality": nil},
			},
			expected: true,
			calls:    []call{{"setPlaybackQuality", 80}},
			title:    "Only a legacy method",
		},
		{
			player: &fakePlayer{
				methods: map[string]error{
					"requestQuality":     errors.New("TypeError"),
					"setQuality":         errors.New("boom"),
					"setPlaybackQuality": nil,
				},
				async: map[string]bool{"requestQuality": true},
			},
			expected: true,
			calls: []call{
				{"requestQuality", 80},
				{"setQuality", 80},
				{"setPlaybackQuality", 80},
			},
			title: "Falls through failing methods",
		},
		{
			player:   &fakePlayer{methods: map[string]error{}},
			expected: false,
			title:    "No known method",
		},
		{
			player: &fakePlayer{
				absent:  true,
				methods: map[string]error{"setQuality": nil},
			},
			expected: false,
			title:    "No player object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			// Arrange
			a := player.NewApplier()

			// Act
			actual := a.Apply(context.Background(), tt.player, quality.Quality1080P)

			// Assert
			require.Equal(t, tt.expected, actual)
			require.Equal(t, tt.calls, tt.player.Calls())
		})
	}
}

func TestApplierApplyNilPlayer(t *testing.T) {
	a := player.NewApplier()
	require.False(t, a.Apply(context.Background(), nil, quality.Quality1080P))
}

func TestApplierWithCapabilities(t *testing.T) {
	// Arrange
	p := &fakePlayer{
		methods: map[string]error{"requestQuality": nil, "switchQuality": nil},
		async:   map[string]bool{"requestQuality": true},
	}
	a := player.NewApplier(player.WithCapabilities(player.Setter("switchQuality")))

	// Act
	ok := a.Apply(context.Background(), p, quality.Quality4K)

	// Assert
	require.True(t, ok)
	require.Equal(t, []call{{"switchQuality", 120}}, p.Calls())
}

type pendingPlayer struct {
	fakePlayer
	outcome chan error
}

func (p *pendingPlayer) Request(
	_ context.Context,
	method string,
	q quality.Quality,
) (<-chan error, error) {
	_ = p.record(method, q)
	return p.outcome, nil
}

func TestApplierDoesNotWaitForAsyncOutcome(t *testing.T) {
	// Arrange
	p := &pendingPlayer{
		fakePlayer: fakePlayer{methods: map[string]error{"requestQuality": nil}},
		outcome:    make(chan error),
	}
	a := player.NewApplier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Act
	done := make(chan bool)
	go func() {
		done <- a.Apply(ctx, p, quality.Quality720P)
	}()

	// Assert
	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("Apply blocked on the asynchronous outcome")
	}
	require.Len(t, p.Calls(), 1)
}
