// Package client talks to a torrouterd API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/torrouter/torrouter/internal/control"
	"github.com/torrouter/torrouter/internal/status"
)

const (
	// DefaultURL is where torrouterd listens on a stock appliance.
	DefaultURL = "http://127.0.0.1:8088"

	// statusTimeout covers the slowest status source (the Tor check).
	statusTimeout = 30 * time.Second
	// controlTimeout covers the daemon's default trigger timeout.
	controlTimeout = 90 * time.Second
)

// Client is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the API at baseURL.
func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{},
	}
}

// Status fetches one snapshot.
func (c *Client) Status(ctx context.Context) (status.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	var snap status.Snapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/status", nil)
	if err != nil {
		return snap, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return snap, fmt.Errorf("fetch status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return snap, apiError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("parse status: %w", err)
	}
	return snap, nil
}

// Control sends one action. A rejected or failed action is reported in the
// Result, not as an error.
func (c *Client) Control(ctx context.Context, req control.Request) (control.Result, error) {
	body, _ := json.Marshal(req)
	return c.post(ctx, "application/json", bytes.NewReader(body))
}

// Upload sends the profile file at path.
func (c *Client) Upload(ctx context.Context, path string) (control.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return control.Result{}, fmt.Errorf("open profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("action", string(control.KindVPNUpload)); err != nil {
		return control.Result{}, err
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return control.Result{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return control.Result{}, fmt.Errorf("read profile: %w", err)
	}
	if err := mw.Close(); err != nil {
		return control.Result{}, err
	}
	return c.post(ctx, mw.FormDataContentType(), &buf)
}

func (c *Client) post(ctx context.Context, contentType string, body io.Reader) (control.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	var res control.Result
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/control", body)
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("send action: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &res); err != nil || (res.Message == "" && !res.OK) {
		return res, apiError(resp.StatusCode, data)
	}
	return res, nil
}

func apiError(code int, body []byte) error {
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
		return fmt.Errorf("API error: HTTP %d: %s", code, msg.Message)
	}
	return fmt.Errorf("API error: HTTP %d", code)
}
