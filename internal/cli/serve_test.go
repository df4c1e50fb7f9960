package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_StartsAndStopsOnCancel(t *testing.T) {
	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions:     &RootOptions{Format: "text", Store: "memory"},
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: 2 * time.Second,
		ready:           func(addr string) { ready <- addr },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewServeCommand(opts.RootOptions)
	cmd.SetContext(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"ok"`)

	resp, err = http.Post("http://"+addr+"/cases", "application/json",
		strings.NewReader(`{"id":"loan-0001","sections":{"application":{"loan_number":"LN-1"}}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Contains(t, out.String(), "Listening on "+addr)
}

func TestServe_BadAddress(t *testing.T) {
	opts := &ServeOptions{
		RootOptions:     &RootOptions{Format: "text", Store: "memory"},
		Addr:            "256.0.0.1:bad",
		ShutdownTimeout: time.Second,
	}
	cmd := NewServeCommand(opts.RootOptions)
	cmd.SetContext(context.Background())

	err := runServe(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to listen")
}
