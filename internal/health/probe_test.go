package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbe_ImmediateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(WithInterval(time.Millisecond))
	if err := p.Probe(context.Background(), srv.URL+"/health"); err != nil {
		t.Fatalf("Probe failed on healthy endpoint: %v", err)
	}
}

func TestProbe_SucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewProber(WithInterval(time.Millisecond))
	if err := p.Probe(ctx, srv.URL+"/health"); err != nil {
		t.Fatalf("Probe failed: %v (calls=%d)", err, calls.Load())
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 probe attempts, got %d", calls.Load())
	}
}

func TestProbe_UnreachableEndpointBounded(t *testing.T) {
	// Reserve a port with no listener behind it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	p := NewProber(WithInterval(10 * time.Millisecond))
	err := p.Probe(ctx, url+"/health")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error against unreachable endpoint")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("probe must respect the deadline, took %v", elapsed)
	}
}

func TestProbe_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := NewProber(WithInterval(10 * time.Millisecond))
	if err := p.Probe(ctx, srv.URL+"/health"); err == nil {
		t.Fatal("expected error for persistent 404")
	}
}
