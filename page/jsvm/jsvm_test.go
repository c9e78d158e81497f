//go:build unit

package jsvm_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Darkness4/bili-auto-quality/page/jsvm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	// Arrange
	vm, err := jsvm.New()
	require.NoError(t, err)
	require.NoError(t, vm.Load("fixture.js", `window.answer = { n: 42, tags: ["a", "b"] };`))
	var res struct {
		N    int      `json:"n"`
		Tags []string `json:"tags"`
	}

	// Act
	err = vm.Evaluate(context.Background(), `answer`, &res)

	// Assert
	require.NoError(t, err)
	require.Equal(t, 42, res.N)
	require.Equal(t, []string{"a", "b"}, res.Tags)
}

func TestEvaluateThrows(t *testing.T) {
	vm, err := jsvm.New()
	require.NoError(t, err)

	err = vm.Evaluate(context.Background(), `null.foo`, nil)

	require.Error(t, err)
}

func TestEvaluateUndefined(t *testing.T) {
	vm, err := jsvm.New()
	require.NoError(t, err)
	var res map[string]any

	err = vm.Evaluate(context.Background(), `undefined`, &res)

	require.Error(t, err)
}

func TestAwait(t *testing.T) {
	tests := []struct {
		expr     string
		expected int
		isError  error
		title    string
	}{
		{
			expr:     `Promise.resolve(1).then(function(v) { return v + 1; })`,
			expected: 2,
			title:    "Fulfilled chain",
		},
		{
			expr:    `Promise.reject(new Error("nope"))`,
			isError: jsvm.ErrPromiseRejected,
			title:   "Rejected",
		},
		{
			expr:    `new Promise(function() {})`,
			isError: jsvm.ErrPromisePending,
			title:   "Never settles",
		},
		{
			expr:     `3`,
			expected: 3,
			title:    "Not a promise",
		},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			// Arrange
			vm, err := jsvm.New()
			require.NoError(t, err)
			var actual int

			// Act
			err = vm.Await(context.Background(), tt.expr, &actual)

			// Assert
			if tt.isError != nil {
				require.ErrorIs(t, err, tt.isError)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.expected, actual)
			}
		})
	}
}

func TestConsole(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	vm, err := jsvm.New(jsvm.WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)

	// Act
	err = vm.Load("fixture.js", `console.warn("player", 3, "not ready");`)

	// Assert
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), `player 3 not ready`)
}

func TestSetReadyState(t *testing.T) {
	vm, err := jsvm.New()
	require.NoError(t, err)
	var state string

	require.NoError(t, vm.Evaluate(context.Background(), `document.readyState`, &state))
	require.Equal(t, "loading", state)

	require.NoError(t, vm.SetReadyState("complete"))
	require.NoError(t, vm.Evaluate(context.Background(), `document.readyState`, &state))
	require.Equal(t, "complete", state)
}

func TestEvaluateInterrupted(t *testing.T) {
	// Arrange
	vm, err := jsvm.New()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Act
	err = vm.Evaluate(ctx, `for (;;) {}`, nil)

	// Assert
	require.Error(t, err)

	// The runtime stays usable.
	var n int
	require.NoError(t, vm.Evaluate(context.Background(), `1 + 1`, &n))
	require.Equal(t, 2, n)
}
