//go:build unit

package autoquality_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Darkness4/bili-auto-quality/autoquality"
	"github.com/Darkness4/bili-auto-quality/page"
	"github.com/Darkness4/bili-auto-quality/page/jsvm"
	"github.com/Darkness4/bili-auto-quality/player"
	"github.com/Darkness4/bili-auto-quality/poller"
	"github.com/Darkness4/bili-auto-quality/quality"
	"github.com/Darkness4/bili-auto-quality/state"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	info *quality.PlayInfo
}

func (s *staticSource) PlayInfo(context.Context) (*quality.PlayInfo, error) {
	return s.info, nil
}

// recordingPlayer only exposes setQuality.
type recordingPlayer struct {
	mu    sync.Mutex
	calls []quality.Quality
}

func (p *recordingPlayer) Present(context.Context) (bool, error) { return true, nil }

func (p *recordingPlayer) Has(_ context.Context, method string) (bool, error) {
	return method == "setQuality", nil
}

func (p *recordingPlayer) Call(_ context.Context, _ string, q quality.Quality) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, q)
	return nil
}

func (p *recordingPlayer) Request(context.Context, string, quality.Quality) (<-chan error, error) {
	return nil, player.ErrMethodNotFound
}

func (p *recordingPlayer) SupportedQualities(context.Context) ([]quality.Quality, error) {
	return nil, player.ErrMethodNotFound
}

func (p *recordingPlayer) Calls() []quality.Quality {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]quality.Quality(nil), p.calls...)
}

func fastParams() *autoquality.Params {
	params := autoquality.DefaultParams.Clone()
	params.PollInterval = time.Millisecond
	params.MaxAttempts = 5
	params.ReadyTimeout = 50 * time.Millisecond
	return params
}

func TestTrySet(t *testing.T) {
	tests := []struct {
		info       *quality.PlayInfo
		preference quality.Preference
		expected   bool
		calls      []quality.Quality
		title      string
	}{
		{
			info: &quality.PlayInfo{
				Present:       true,
				AcceptQuality: []quality.Quality{80, 64, 32},
			},
			preference: quality.DefaultPreference,
			expected:   true,
			calls:      []quality.Quality{80},
			title:      "Best preferred quality",
		},
		{
			info: &quality.PlayInfo{
				Present:       true,
				AcceptQuality: []quality.Quality{200, 150},
			},
			preference: quality.DefaultPreference,
			expected:   true,
			calls:      []quality.Quality{200},
			title:      "Falls back to the first offered",
		},
		{
			info: &quality.PlayInfo{
				Present:       true,
				AcceptQuality: []quality.Quality{120, 80, 32},
			},
			preference: quality.Preference{32, 80},
			expected:   true,
			calls:      []quality.Quality{32},
			title:      "Custom preference",
		},
		{
			info:       &quality.PlayInfo{Present: true, AcceptQuality: []quality.Quality{}},
			preference: quality.DefaultPreference,
			expected:   false,
			title:      "Empty list never reaches the player",
		},
		{
			info:       nil,
			preference: quality.DefaultPreference,
			expected:   false,
			title:      "No play info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			// Arrange
			p := &recordingPlayer{}
			params := fastParams()
			params.Preference = tt.preference
			aq := autoquality.New(&staticSource{info: tt.info}, p, params)

			// Act
			actual := aq.TrySet(context.Background())

			// Assert
			require.Equal(t, tt.expected, actual)
			require.Equal(t, tt.calls, p.Calls())
		})
	}
}

func TestRunExhaustedWithoutQualities(t *testing.T) {
	// Arrange
	p := &recordingPlayer{}
	src := &staticSource{info: &quality.PlayInfo{Present: true}}
	aq := autoquality.New(src, p, fastParams(), autoquality.WithName("exhausted-test"))

	// Act
	res := aq.Run(context.Background())

	// Assert
	require.Equal(t, poller.StateExhausted, res.State)
	require.Equal(t, 5, res.Attempts)
	require.Empty(t, p.Calls())
	require.Equal(t, poller.StateExhausted, state.DefaultState.GetPageState("exhausted-test"))
}

func TestRunCanceled(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	aq := autoquality.New(&staticSource{}, &recordingPlayer{}, fastParams())

	// Act
	res := aq.Run(ctx)

	// Assert
	require.Equal(t, poller.StateCanceled, res.State)
}

func newPage(t *testing.T, script string) (*page.Page, *jsvm.VM) {
	t.Helper()
	vm, err := jsvm.New()
	require.NoError(t, err)
	require.NoError(t, vm.Load("fixture.js", script))
	return page.New(vm), vm
}

func TestRunOnPage(t *testing.T) {
	// Arrange
	script, err := os.ReadFile("../page/testdata/video.js")
	require.NoError(t, err)
	pg, vm := newPage(t, string(script))
	aq := autoquality.New(
		pg,
		pg,
		fastParams(),
		autoquality.WithReadiness(pg),
		autoquality.WithName("video-test"),
	)

	// Act
	res := aq.Run(context.Background())

	// Assert
	require.Equal(t, poller.StateSucceeded, res.State)
	require.Equal(t, 0, res.Attempts)
	require.Equal(t, quality.Quality1080P, res.Quality)
	require.Equal(t, "高清 1080P", res.Description)
	require.Eventually(t, func() bool {
		var current int
		err := vm.Evaluate(context.Background(), `window.player.current`, &current)
		return err == nil && current == 80
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, poller.StateSucceeded, state.DefaultState.GetPageState("video-test"))
}

func TestRunOnLatePage(t *testing.T) {
	// Arrange
	script, err := os.ReadFile("testdata/late_player.js")
	require.NoError(t, err)
	pg, vm := newPage(t, string(script))
	require.NoError(t, vm.SetReadyState("interactive"))
	aq := autoquality.New(pg, pg, fastParams(), autoquality.WithReadiness(pg))

	// Act
	res := aq.Run(context.Background())

	// Assert
	require.Equal(t, poller.StateSucceeded, res.State)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, quality.Quality1080P60, res.Quality)
	var current int
	require.NoError(t, vm.Evaluate(context.Background(), `window.player.current`, &current))
	require.Equal(t, 116, current)
}

func TestRunPollsWhenNeverReady(t *testing.T) {
	// Arrange
	script, err := os.ReadFile("../page/testdata/video.js")
	require.NoError(t, err)
	pg, vm := newPage(t, string(script))
	require.NoError(t, vm.SetReadyState("loading"))
	aq := autoquality.New(pg, pg, fastParams(), autoquality.WithReadiness(pg))

	// Act
	res := aq.Run(context.Background())

	// Assert
	require.Equal(t, poller.StateSucceeded, res.State)
}
