// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// mockServer is a controllable HTTPServer double.
type mockServer struct {
	listenErr   error
	shutdownErr error
	release     chan struct{}

	shutdownCalled bool
}

func newMockServer() *mockServer {
	return &mockServer{release: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	<-m.release
	if m.listenErr != nil {
		return m.listenErr
	}
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(_ context.Context) error {
	m.shutdownCalled = true
	close(m.release)
	return m.shutdownErr
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newMockServer()
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if !server.shutdownCalled {
		t.Error("Shutdown was not called")
	}
}

func TestHTTPServicePropagatesListenError(t *testing.T) {
	server := newMockServer()
	server.listenErr = errors.New("port in use")
	close(server.release)

	svc := NewHTTPService(server, time.Second)
	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve returned %v, want wrapped listen error", err)
	}
}

func TestHTTPServicePropagatesShutdownError(t *testing.T) {
	server := newMockServer()
	server.shutdownErr = errors.New("connections stuck")
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-done
	if err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want shutdown error", err)
	}
}

func TestHTTPServiceDefaultTimeout(t *testing.T) {
	svc := NewHTTPService(newMockServer(), 0)
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s default", svc.shutdownTimeout)
	}
}

func TestHTTPServiceString(t *testing.T) {
	if got := NewHTTPService(newMockServer(), time.Second).String(); got != "http-server" {
		t.Errorf("String() = %q, want http-server", got)
	}
}
