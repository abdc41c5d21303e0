package sourceclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetCadernoURLSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"https://example.com/TJSP-2024-01-15.zip"}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	url, err := c.GetCadernoURL(context.Background(), "TJSP", mustDate("2024-01-15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://example.com/TJSP-2024-01-15.zip" {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestGetCadernoURL404IsAuthoritativeAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	_, err := c.GetCadernoURL(context.Background(), "TJSP", mustDate("2024-01-15"))

	var absent *AuthoritativeAbsent
	if !errors.As(err, &absent) {
		t.Fatalf("expected AuthoritativeAbsent, got %v", err)
	}
	if absent.StatusCode != 404 {
		t.Fatalf("expected status 404, got %d", absent.StatusCode)
	}
}

func TestGetCadernoURLEmptyURLIsAuthoritativeAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":""}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	_, err := c.GetCadernoURL(context.Background(), "TJSP", mustDate("2024-01-15"))

	var absent *AuthoritativeAbsent
	if !errors.As(err, &absent) {
		t.Fatalf("expected AuthoritativeAbsent, got %v", err)
	}
	if absent.Reason != "Empty or missing URL field" {
		t.Fatalf("unexpected reason: %s", absent.Reason)
	}
}

func TestGetCadernoURLInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	_, err := c.GetCadernoURL(context.Background(), "TJSP", mustDate("2024-01-15"))

	var absent *AuthoritativeAbsent
	if !errors.As(err, &absent) {
		t.Fatalf("expected AuthoritativeAbsent, got %v", err)
	}
	if absent.Reason != "Invalid JSON" {
		t.Fatalf("unexpected reason: %s", absent.Reason)
	}
}

func TestGetCadernoURLServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	_, err := c.GetCadernoURL(context.Background(), "TJSP", mustDate("2024-01-15"))

	var transient *TransientSource
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientSource, got %v", err)
	}
}

func TestDownloadZipSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	data, err := c.DownloadZip(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "zip-bytes" {
		t.Fatalf("unexpected bytes: %s", data)
	}
}

func TestDownloadZipEmptyBodyIsAuthoritativeAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	_, err := c.DownloadZip(context.Background(), srv.URL)

	var absent *AuthoritativeAbsent
	if !errors.As(err, &absent) {
		t.Fatalf("expected AuthoritativeAbsent, got %v", err)
	}
}

func TestListTribunalsMergesAPIWithHardcoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"instituicoes":[{"sigla":"ZZZZ"}]}]`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	codes := c.ListTribunals(context.Background())

	foundZZZZ, foundTJSP := false, false
	for _, code := range codes {
		if code == "ZZZZ" {
			foundZZZZ = true
		}
		if code == "TJSP" {
			foundTJSP = true
		}
	}
	if !foundZZZZ || !foundTJSP {
		t.Fatalf("expected merged list to contain both API and hardcoded codes: %v", codes)
	}
}

func TestListTribunalsToleratesMalformedAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	codes := c.ListTribunals(context.Background())
	if len(codes) == 0 {
		t.Fatal("expected hardcoded fallback list even when API fails")
	}
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}
