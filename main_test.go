package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"probeserver/internal/config"
	"probeserver/scheduler"
)

func testConfig() *config.Config {
	return &config.Config{
		BindAddress:           "127.0.0.1",
		Port:                  0,
		ReadTimeout:           time.Second,
		WriteTimeout:          time.Second,
		SchedulerWorkers:      2,
		SchedulerPollInterval: time.Hour,
		SchedulerMaxAttempts:  3,
	}
}

func probe(t *testing.T, addr net.Addr, path string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err = io.WriteString(conn, "GET "+path+" HTTP/1.1\r\n")
	require.NoError(t, err)
	raw, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(raw)
}

func TestNewLogger(t *testing.T) {
	for _, debug := range []bool{true, false} {
		logger, err := newLogger(debug)
		require.NoError(t, err)
		assert.Equal(t, debug, logger.Core().Enabled(zap.DebugLevel))
	}
}

func TestRunServesProbesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, testConfig(), zap.NewNop(), ready) }()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-errc:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("probe server never became ready")
	}

	assert.True(t, strings.HasPrefix(probe(t, addr, "/status"), "HTTP/1.1 200\r\n"))
	assert.True(t, strings.HasSuffix(probe(t, addr, "/status/started"), "\r\n\r\nStarted"))
	assert.True(t, strings.HasSuffix(probe(t, addr, "/status/connected"), "\r\n\r\nConnected"))
	assert.True(t, strings.HasPrefix(probe(t, addr, "/nope"), "HTTP/1.1 404\r\n"))

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not return after cancel")
	}

	_, err := net.DialTimeout("tcp", addr.String(), 200*time.Millisecond)
	assert.Error(t, err, "probe listener must be closed after shutdown")
}

func TestRunReturnsBindError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.Port = taken.Addr().(*net.TCPAddr).Port
	err = run(context.Background(), cfg, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind")
}

func TestHostReportsNotStartedAfterSchedulerStops(t *testing.T) {
	h := newHost(testConfig(), zap.NewNop())
	require.NoError(t, h.start())
	defer h.stop(context.Background())

	addr := h.probe.Addr()
	assert.True(t, strings.HasSuffix(probe(t, addr, "/status/connected"), "Connected"))

	h.notifier.Stop()
	assert.True(t, strings.HasPrefix(probe(t, addr, "/status/connected"), "HTTP/1.1 503\r\n"))
	assert.True(t, strings.HasPrefix(probe(t, addr, "/status/started"), "HTTP/1.1 200\r\n"))

	h.scheduler.Stop()
	assert.True(t, strings.HasSuffix(probe(t, addr, "/status/started"), "Not started"))
}

func TestEnqueueWakesSchedulerThroughNotifier(t *testing.T) {
	h := newHost(testConfig(), zap.NewNop())
	require.NoError(t, h.start())
	defer h.stop(context.Background())

	// The poll interval is an hour, so only the notifier can trigger this.
	done := make(chan struct{})
	h.scheduler.Enqueue(scheduler.Job{Name: "ping", Perform: func(context.Context) error {
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job was not performed after enqueue notification")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	h := newHost(cfg, zap.NewNop())
	require.NoError(t, h.start())
	defer h.stop(context.Background())

	require.NotNil(t, h.metricsAddr)

	probe(t, h.probe.Addr(), "/status")

	resp, err := http.Get("http://" + h.metricsAddr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "probe_server_running 1")
	assert.Contains(t, string(body), "probe_connections_accepted_total 1")
}

func TestMetricsServerBindError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.MetricsAddr = taken.Addr().String()
	h := newHost(cfg, zap.NewNop())
	require.Error(t, h.start())
	assert.False(t, h.probe.Running())
	assert.False(t, h.scheduler.Running())
	assert.False(t, h.notifier.Listening())
}
