package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewUnlimitedReturnsBaseUnwrapped(t *testing.T) {
	base := http.DefaultTransport
	got := New(base, 0)
	if got != http.RoundTripper(base) {
		t.Fatal("expected unlimited rate to return the base transport unwrapped")
	}
}

func TestTransportPacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(http.DefaultTransport, 2)}

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
	}
	elapsed := time.Since(start)

	if elapsed < 400*time.Millisecond {
		t.Fatalf("expected pacing to slow 3 requests at 2/sec with burst 2, took %v", elapsed)
	}
}
