package provclient_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loomcore/provenance/internal/capture"
	"github.com/loomcore/provenance/internal/protocol"
	"github.com/loomcore/provenance/internal/provclient"
)

func startDaemon(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := &capture.Config{
		Storage: capture.StorageConfig{Path: filepath.Join(dir, "provenance.db")},
		Socket:  capture.SocketConfig{Path: filepath.Join(dir, "provenanced.sock")},
	}
	sub, err := capture.New(cfg)
	if err != nil {
		t.Fatalf("capture.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go sub.Run(ctx)
	t.Cleanup(cancel)

	// Run's socket start happens synchronously before its goroutine loop
	// blocks, but the Unix socket file may not exist for a brief window
	// right after go sub.Run(ctx) is scheduled; Dial retries below.
	return cfg.Socket.Path
}

func dial(t *testing.T, path string) *provclient.Client {
	t.Helper()
	var lastErr error
	for i := 0; i < 40; i++ {
		c, err := provclient.Dial(path)
		if err == nil {
			return c
		}
		lastErr = err
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Dial: %v", lastErr)
	return nil
}

func TestClientRequestRoundtripsHello(t *testing.T) {
	path := startDaemon(t)
	c := dial(t, path)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var resp protocol.HelloResp
	if err := c.Request(ctx, protocol.TypeHello, nil, &resp); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.ProtocolVersion != capture.ProtocolVersion {
		t.Fatalf("ProtocolVersion = %d, want %d", resp.ProtocolVersion, capture.ProtocolVersion)
	}
}

func TestClientRequestSurfacesDaemonError(t *testing.T) {
	path := startDaemon(t)
	c := dial(t, path)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Request(ctx, protocol.MsgType("not:a:real:type"), nil, nil)
	if err == nil {
		t.Fatal("Request with an unrecognized type should return an error")
	}
}

func TestClientRequestAppliesContextDeadline(t *testing.T) {
	path := startDaemon(t)
	c := dial(t, path)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	err := c.Request(ctx, protocol.TypeHello, nil, &protocol.HelloResp{})
	if err == nil {
		t.Fatal("Request should fail once the context deadline has passed")
	}
}
