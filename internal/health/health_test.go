package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/sysmedic-client/internal/model"
)

const healthBody = `{"status":"ok","running":true,"clients":2,"port":8060,"hostname":"node-1","has_secret":true}`

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(healthBody))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/health")
	status, err := client.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if status.Status != "ok" {
		t.Errorf("Status = %q, want ok", status.Status)
	}
	if !status.Running {
		t.Error("Running = false, want true")
	}
	if status.Clients != 2 {
		t.Errorf("Clients = %d, want 2", status.Clients)
	}
	if status.Hostname != "node-1" {
		t.Errorf("Hostname = %q, want node-1", status.Hostname)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(healthBody))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
	status, err := client.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("Status = %q, want ok", status.Status)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
	_, err := client.Get(context.Background())
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %T, want *StatusError", err)
	}
	if se.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", se.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retries on 4xx)", calls.Load())
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(2, 5*time.Millisecond))
	_, err := client.Get(context.Background())
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
}

func TestClient_ContextCancelDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(5, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestStatusError_IsRetryable(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}

	for _, tc := range cases {
		se := &StatusError{StatusCode: tc.code}
		if got := se.IsRetryable(); got != tc.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestProber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(healthBody))
	}))
	defer server.Close()

	results := make(chan *model.HealthStatus, 10)
	handler := StatusHandlerFunc(func(s *model.HealthStatus, err error) {
		if err == nil {
			results <- s
		}
	})

	cfg := ProberConfig{Interval: 20 * time.Millisecond, Timeout: time.Second}
	prober := NewProber(cfg, NewClient(server.URL), handler, nil)

	if err := prober.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer prober.Stop()

	select {
	case s := <-results:
		if s.Status != "ok" {
			t.Errorf("Status = %q, want ok", s.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for a probe result")
	}
}

func TestProber_StopHaltsProbes(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(healthBody))
	}))
	defer server.Close()

	cfg := ProberConfig{Interval: 10 * time.Millisecond, Timeout: time.Second}
	prober := NewProber(cfg, NewClient(server.URL), nil, nil)

	if err := prober.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	prober.Stop()

	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Error("probes continued after Stop")
	}
}

func TestDefaultProberConfig(t *testing.T) {
	cfg := DefaultProberConfig()
	if cfg.Interval != time.Minute {
		t.Errorf("Interval = %v, want 1m", cfg.Interval)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
}
