// Package sourceclient talks to the remote publication proxy: resolving a
// (tribunal, date) pair to a download URL, downloading the caderno ZIP,
// and listing the tribunal codes the proxy knows about. It is responsible
// for distinguishing an authoritative "no bulletin today" signal from a
// transient transport or server failure.
package sourceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/franklinbaldo/djen-backup/internal/httpx"
)

// AuthoritativeAbsent proves the source has no bulletin for a (date,
// tribunal) pair — distinct from a transient failure. It is not an error
// the caller should log as a failure; the item processor treats it as a
// signal to write an absent marker.
type AuthoritativeAbsent struct {
	StatusCode int
	Reason     string
}

func (e *AuthoritativeAbsent) Error() string {
	return fmt.Sprintf("authoritative absent: status=%d reason=%s", e.StatusCode, e.Reason)
}

// TransientSource wraps a non-authoritative source-side failure (5xx,
// transport error) that should be retried on a future run, not within
// this one.
type TransientSource struct {
	StatusCode int
	Err        error
}

func (e *TransientSource) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient source error: status=%d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient source error: status=%d", e.StatusCode)
}

func (e *TransientSource) Unwrap() error { return e.Err }

// Client resolves caderno URLs and downloads ZIPs from the source proxy.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// New returns a source client bound to baseURL using httpClient for
// transport (shared across source and archive clients per the
// concurrency model's "one HTTP client" assumption).
func New(httpClient *http.Client, baseURL string) *Client {
	return &Client{HTTPClient: httpClient, BaseURL: baseURL}
}

type cadernoResponse struct {
	URL string `json:"url"`
}

// GetCadernoURL resolves (tribunal, date) to a download URL. A 404
// response, or a 2xx response with a missing/empty url field or invalid
// JSON, yields *AuthoritativeAbsent. Any other non-2xx after the retry
// budget is exhausted yields *TransientSource.
func (c *Client) GetCadernoURL(ctx context.Context, tribunal string, date time.Time) (string, error) {
	url := fmt.Sprintf("%s/api/v1/caderno/%s/%s/D", c.BaseURL, tribunal, date.Format("2006-01-02"))

	resp, err := httpx.Do(ctx, c.HTTPClient, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}, httpx.Options{RetrySource400: true})
	if err != nil {
		return "", &TransientSource{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &AuthoritativeAbsent{StatusCode: http.StatusNotFound, Reason: "Not Found"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransientSource{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientSource{StatusCode: resp.StatusCode, Err: err}
	}

	var parsed cadernoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &AuthoritativeAbsent{StatusCode: resp.StatusCode, Reason: "Invalid JSON"}
	}
	if parsed.URL == "" {
		return "", &AuthoritativeAbsent{StatusCode: resp.StatusCode, Reason: "Empty or missing URL field"}
	}

	return parsed.URL, nil
}

// DownloadZip fetches the bytes at url. A 404 or a zero-length 2xx body is
// authoritative absence; any other non-2xx is transient.
func (c *Client) DownloadZip(ctx context.Context, url string) ([]byte, error) {
	resp, err := httpx.Do(ctx, c.HTTPClient, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}, httpx.Options{})
	if err != nil {
		return nil, &TransientSource{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &AuthoritativeAbsent{StatusCode: http.StatusNotFound, Reason: "ZIP download 404"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransientSource{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientSource{StatusCode: resp.StatusCode, Err: err}
	}
	if len(body) == 0 {
		return nil, &AuthoritativeAbsent{StatusCode: resp.StatusCode, Reason: "Empty ZIP response"}
	}

	return body, nil
}

// tribunalAPIResponse is a top-level JSON array of groups, each bundling
// the institutions (tribunals) that belong to it — not an object keyed by
// "groups".
type tribunalAPIResponse []struct {
	Instituicoes []struct {
		Sigla string `json:"sigla"`
	} `json:"instituicoes"`
}

// ListTribunals returns the sorted union of the hardcoded fallback list
// and whatever codes the proxy's comunicacao/tribunal endpoint reports.
// A malformed or unreachable API response contributes zero extra codes
// rather than failing the call — the hardcoded list alone is always a
// usable result.
func (c *Client) ListTribunals(ctx context.Context) []string {
	seen := make(map[string]struct{}, len(hardcodedTribunais))
	for _, code := range hardcodedTribunais {
		seen[code] = struct{}{}
	}

	for _, code := range c.fetchAPITribunals(ctx) {
		seen[code] = struct{}{}
	}

	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (c *Client) fetchAPITribunals(ctx context.Context) []string {
	url := c.BaseURL + "/api/v1/comunicacao/tribunal"
	resp, err := httpx.Do(ctx, c.HTTPClient, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}, httpx.Options{})
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var parsed tribunalAPIResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &parsed); err != nil {
		return nil
	}

	var codes []string
	for _, g := range parsed {
		for _, inst := range g.Instituicoes {
			if inst.Sigla != "" {
				codes = append(codes, inst.Sigla)
			}
		}
	}
	return codes
}
