package gapdiscovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franklinbaldo/djen-backup/internal/archiveclient"
	"github.com/franklinbaldo/djen-backup/internal/mirror"
	"github.com/franklinbaldo/djen-backup/internal/model"
)

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDiscoverCacheShortCircuitsNoRemoteCalls(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"files":[]}`))
	}))
	defer srv.Close()

	state := mirror.New()
	state.Mark("2024-01-15", "TJSP", model.StatusUploaded)
	state.Mark("2024-01-15", "TJRJ", model.StatusUploaded)

	archive := archiveclient.New(srv.Client(), "LOW a:b")
	archive.HTTPClient.Transport = redirectTo(srv.URL)

	d := mustDate("2024-01-15")
	work := Discover(context.Background(), archive, state, []string{"TJSP", "TJRJ"}, d, d, false)

	if len(work) != 0 {
		t.Fatalf("expected empty work list, got %v", work)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected zero archive-metadata requests, got %d", calls)
	}
}

func TestDiscoverEmitsGapsForMissingTribunals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files":[{"name":"djen-2024-01-15-TJSP.zip"}]}`))
	}))
	defer srv.Close()

	state := mirror.New()
	archive := archiveclient.New(srv.Client(), "LOW a:b")
	archive.HTTPClient.Transport = redirectTo(srv.URL)

	d := mustDate("2024-01-15")
	work := Discover(context.Background(), archive, state, []string{"TJSP", "TJRJ"}, d, d, false)

	if len(work) != 1 || work[0].Tribunal != "TJRJ" {
		t.Fatalf("expected gap for TJRJ only, got %v", work)
	}
}

type redirectTransport struct{ target string }

func redirectTo(target string) http.RoundTripper {
	return redirectTransport{target: target}
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL := rt.target + req.URL.Path
	newReq, err := http.NewRequestWithContext(req.Context(), req.Method, targetURL, req.Body)
	if err != nil {
		return nil, err
	}
	newReq.Header = req.Header
	return http.DefaultTransport.RoundTrip(newReq)
}
