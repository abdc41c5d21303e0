package archiveclient

import (
	"context"
	"crypto/md5" //nolint:gosec // verifying the wire contract, not using it for security
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/franklinbaldo/djen-backup/internal/model"
)

func TestListExistingParsesZipAndAbsentEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files":[{"name":"djen-2024-01-15-TJSP.zip"},{"name":"djen-2024-01-15-TJRJ.absent"},{"name":"unrelated.txt"}]}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), "LOW a:b")
	c.HTTPClient.Transport = redirectTo(srv.URL)

	existing := c.ListExisting(context.Background(), "2024-01-15")
	if existing["TJSP"] != model.StatusUploaded {
		t.Fatalf("expected TJSP uploaded, got %v", existing["TJSP"])
	}
	if existing["TJRJ"] != model.StatusAbsent {
		t.Fatalf("expected TJRJ absent, got %v", existing["TJRJ"])
	}
	if _, ok := existing["unrelated"]; ok {
		t.Fatal("unexpected unrelated entry")
	}
}

func TestListExistingNon200YieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.Client(), "LOW a:b")
	c.HTTPClient.Transport = redirectTo(srv.URL)

	existing := c.ListExisting(context.Background(), "2024-01-15")
	if len(existing) != 0 {
		t.Fatalf("expected empty map, got %v", existing)
	}
}

func TestUploadZipSendsExactHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.Client(), "LOW access:secret")
	c.HTTPClient.Transport = redirectTo(srv.URL)

	content := []byte("zip-bytes")
	if err := c.UploadZip(context.Background(), "2024-01-15", "TJSP", content); err != nil {
		t.Fatalf("UploadZip: %v", err)
	}

	sum := md5.Sum(content)
	wantDigest := hex.EncodeToString(sum[:])
	if gotHeaders.Get("Content-MD5") != wantDigest {
		t.Fatalf("expected Content-MD5 %s, got %s", wantDigest, gotHeaders.Get("Content-MD5"))
	}
	if gotHeaders.Get("Authorization") != "LOW access:secret" {
		t.Fatalf("unexpected Authorization header: %s", gotHeaders.Get("Authorization"))
	}
	if gotHeaders.Get("x-archive-auto-make-bucket") != "1" {
		t.Fatal("missing x-archive-auto-make-bucket header")
	}
	if string(gotBody) != "zip-bytes" {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestUploadFailureIsTransientArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.Client(), "LOW a:b")
	c.HTTPClient.Transport = redirectTo(srv.URL)

	err := c.UploadZip(context.Background(), "2024-01-15", "TJSP", []byte("x"))
	var transient *TransientArchive
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientArchive, got %v", err)
	}
}

// redirectTo returns a RoundTripper that rewrites every outbound request
// to target the test server, since archiveclient hardcodes absolute
// archive.org/s3.us.archive.org URLs.
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
