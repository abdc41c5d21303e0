// Package archiveclient talks to the Internet-Archive-style object store:
// listing what already exists for a date, uploading a caderno ZIP, and
// uploading a small "absent" marker proving the source was authoritatively
// empty for that date.
package archiveclient

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // required by the archive's Content-MD5 header contract, not for security
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/franklinbaldo/djen-backup/internal/httpx"
	"github.com/franklinbaldo/djen-backup/internal/model"
)

// TransientArchive wraps an upload response with status >= 400 or a
// transport error.
// It feeds the circuit breaker; it is always a "failed" outcome.
type TransientArchive struct {
	StatusCode int
	Err        error
}

func (e *TransientArchive) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient archive error: status=%d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient archive error: status=%d", e.StatusCode)
}

func (e *TransientArchive) Unwrap() error { return e.Err }

// Client uploads cadernos and absent markers to the archive and lists
// what it already holds for a date.
type Client struct {
	HTTPClient *http.Client
	// Auth is the pre-formed "LOW {access}:{secret}" Authorization header
	// value; its resolution is external to this package.
	Auth string
}

// New returns an archive client using httpClient for transport and auth as
// the Authorization header value for every upload.
func New(httpClient *http.Client, auth string) *Client {
	return &Client{HTTPClient: httpClient, Auth: auth}
}

type metadataResponse struct {
	Files []struct {
		Name string `json:"name"`
	} `json:"files"`
}

// ListExisting returns the tribunal → status map learned from the
// archive's metadata listing for date (YYYY-MM-DD). A non-200 response or
// a malformed payload yields an empty map — no facts are learned, not an
// error.
func (c *Client) ListExisting(ctx context.Context, date string) map[string]model.ItemStatus {
	result := make(map[string]model.ItemStatus)

	url := fmt.Sprintf("https://archive.org/metadata/djen-%s", date)
	resp, err := httpx.Do(ctx, c.HTTPClient, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}, httpx.Options{})
	if err != nil {
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result
	}

	var parsed metadataResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return result
	}

	prefix := fmt.Sprintf("djen-%s-", date)
	for _, f := range parsed.Files {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f.Name, prefix)
		switch {
		case strings.HasSuffix(rest, ".zip"):
			result[strings.TrimSuffix(rest, ".zip")] = model.StatusUploaded
		case strings.HasSuffix(rest, ".absent"):
			result[strings.TrimSuffix(rest, ".absent")] = model.StatusAbsent
		}
	}

	return result
}

// UploadZip PUTs the downloaded bytes as djen-{date}-{tribunal}.zip.
func (c *Client) UploadZip(ctx context.Context, date, tribunal string, content []byte) error {
	filename := fmt.Sprintf("djen-%s-%s.zip", date, tribunal)
	return c.put(ctx, date, filename, content)
}

// absentMarkerBody is the JSON body of an absent marker.
type absentMarkerBody struct {
	StatusCode int    `json:"status_code"`
	Reason     string `json:"reason"`
	CheckedAt  string `json:"checked_at"`
}

// UploadAbsentMarker PUTs a small JSON marker encoding the authoritative
// absence observation as djen-{date}-{tribunal}.absent.
func (c *Client) UploadAbsentMarker(ctx context.Context, date, tribunal string, statusCode int, reason string) error {
	body, err := json.Marshal(absentMarkerBody{
		StatusCode: statusCode,
		Reason:     reason,
		CheckedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal absent marker: %w", err)
	}

	filename := fmt.Sprintf("djen-%s-%s.absent", date, tribunal)
	return c.put(ctx, date, filename, body)
}

func (c *Client) put(ctx context.Context, date, filename string, body []byte) error {
	url := fmt.Sprintf("https://s3.us.archive.org/djen-%s/%s", date, filename)
	digest := md5.Sum(body) //nolint:gosec // Content-MD5 is a wire-protocol contract, not a security digest
	headers := buildUploadHeaders(date, hex.EncodeToString(digest[:]), c.Auth)

	resp, err := httpx.Do(ctx, c.HTTPClient, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}, httpx.Options{})
	if err != nil {
		return &TransientArchive{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &TransientArchive{StatusCode: resp.StatusCode}
	}
	return nil
}

// buildUploadHeaders returns the bit-exact header set required on every
// archive upload.
func buildUploadHeaders(date, md5Hex, auth string) map[string]string {
	return map[string]string{
		"Authorization":               auth,
		"Content-MD5":                 md5Hex,
		"x-archive-auto-make-bucket":  "1",
		"x-archive-queue-derive":      "0",
		"x-archive-meta-collection":   "opensource",
		"x-archive-meta-mediatype":    "data",
		"x-archive-meta-title":       fmt.Sprintf("DJEN Data - %s", date),
		"x-archive-meta-description": "Diario de Justica Eletronico Nacional - Judicial communications from Brazilian courts.",
		"x-archive-meta-subject":     "brazilian-law;djen;legal;judiciary;open-data",
		"x-archive-meta-creator":     "CausaGanha",
		"x-archive-meta-date":        date,
	}
}
