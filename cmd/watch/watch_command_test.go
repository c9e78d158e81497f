//go:build unit

package watch_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Darkness4/bili-auto-quality/cmd/watch"
	"github.com/Darkness4/bili-auto-quality/poller"
	"github.com/Darkness4/bili-auto-quality/state"
	"github.com/stretchr/testify/require"
)

func TestStatusHandler(t *testing.T) {
	// Arrange
	state.DefaultState.SetPageState("status-test", poller.StateSucceeded)
	srv := httptest.NewServer(watch.NewStatusHandler())
	defer srv.Close()

	// Act
	resp, err := http.Get(srv.URL + "/")

	// Assert
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pages map[string]struct {
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pages))
	require.Equal(t, "SUCCEEDED", pages["status-test"].State)
}

func TestStatusHandlerMetrics(t *testing.T) {
	srv := httptest.NewServer(watch.NewStatusHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")

	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
