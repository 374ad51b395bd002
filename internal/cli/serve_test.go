package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/machinekit/pkg/logger"
)

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listening := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Logger: logger.Discard()},
		File:        engineFile,
		Addr:        "127.0.0.1:0",
		OnListen:    func(addr string) { listening <- addr },
	}

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- serveMachine(cmd, opts) }()

	var base string
	select {
	case addr := <-listening:
		base = "http://" + addr
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Post(base+"/events/start", "", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/state")
	require.NoError(t, err)
	var state struct {
		State    string `json:"state"`
		Substate string `json:"substate"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "running", state.State)
	assert.Equal(t, "red", state.Substate)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), "machinekit_events_total")
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "serve did not stop")
	}
}

func TestServe_CommandErrors(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "serve")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "serve", "-f", engineFile, "extra")
	require.Error(t, err)
}
