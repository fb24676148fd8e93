package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torrouter/torrouter/internal/api"
	"github.com/torrouter/torrouter/internal/config"
	"github.com/torrouter/torrouter/internal/control"
	"github.com/torrouter/torrouter/internal/logging"
	"github.com/torrouter/torrouter/internal/profiles"
	"github.com/torrouter/torrouter/internal/runner"
	"github.com/torrouter/torrouter/internal/status"
)

type stubStatus struct {
	mu    sync.Mutex
	calls int
}

func (s *stubStatus) Snapshot(context.Context) status.Snapshot {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return status.Snapshot{
		Services:    map[string]string{"tor": status.Active},
		VPN:         status.VPNStatus{WireGuardInterfaces: []string{}, OpenVPN: status.Inactive},
		VPNProfiles: []string{},
		TorExitIP:   status.TorUnavailable,
		Network:     map[string]status.Interface{},
		WANState:    status.WANNormal,
		Timestamp:   1700000000,
	}
}

// recorder captures runner invocations behind a real Dispatcher.
type recorder struct {
	mu   sync.Mutex
	cmds []runner.Command
}

func (r *recorder) Run(_ context.Context, cmd runner.Command) (runner.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return runner.Result{Output: "done\n"}, nil
}

type fixture struct {
	srv        *httptest.Server
	status     *stubStatus
	runner     *recorder
	profileDir string
}

func newFixture(t *testing.T, opts api.Options) *fixture {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "vpn")
	cfg := config.Default()
	cfg.ProfileDir = dir

	f := &fixture{status: &stubStatus{}, runner: &recorder{}, profileDir: dir}
	d := control.New(cfg, f.runner, &profiles.Store{Dir: dir}, logging.Discard())
	f.srv = httptest.NewServer(api.New(f.status, d, opts, logging.Discard()).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func decodeMessage(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, api.Options{})
	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeMessage(t, resp); body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, api.Options{})
	for _, path := range []string{"/api/status", "/api/status.php"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
		if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
			t.Errorf("Cache-Control = %q", cc)
		}
		body := decodeMessage(t, resp)
		if body["wan_state"] != "normal" || body["vpn_profiles"] == nil {
			t.Errorf("%s body = %v", path, body)
		}
	}
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, api.Options{})
	resp := postJSON(t, f.srv.URL+"/api/status", "{}")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	body := decodeMessage(t, resp)
	if body["ok"] != false || body["message"] != "Method not allowed" {
		t.Errorf("body = %v", body)
	}
}

func TestControl_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, api.Options{})
	resp, err := http.Get(f.srv.URL + "/api/control.php")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	if body := decodeMessage(t, resp); body["message"] != "Method not allowed" {
		t.Errorf("body = %v", body)
	}
}

func TestControl_UnknownAction(t *testing.T) {
	f := newFixture(t, api.Options{})
	resp := postJSON(t, f.srv.URL+"/api/control", `{"action":"format_disk"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeMessage(t, resp)
	if body["ok"] != false || body["message"] != "Unknown action: format_disk" {
		t.Errorf("body = %v", body)
	}
}

func TestControl_EmptyBody(t *testing.T) {
	f := newFixture(t, api.Options{})
	resp := postJSON(t, f.srv.URL+"/api/control", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body := decodeMessage(t, resp); body["message"] != "Unknown action: " {
		t.Errorf("body = %v", body)
	}
}

func TestControl_MalformedJSON(t *testing.T) {
	f := newFixture(t, api.Options{})
	resp := postJSON(t, f.srv.URL+"/api/control", `{"action":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body := decodeMessage(t, resp); body["ok"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestControl_BodyTooLarge(t *testing.T) {
	f := newFixture(t, api.Options{})
	big := `{"action":"tor_restart","profile":"` + strings.Repeat("a", 80<<10) + `"}`
	resp := postJSON(t, f.srv.URL+"/api/control", big)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestControl_Actions(t *testing.T) {
	f := newFixture(t, api.Options{})

	resp := postJSON(t, f.srv.URL+"/api/control.php", `{"action":"tor_restart"}`)
	body := decodeMessage(t, resp)
	if resp.StatusCode != http.StatusOK || body["ok"] != true || body["message"] != "Tor restarted." {
		t.Errorf("tor_restart: %d %v", resp.StatusCode, body)
	}

	resp = postJSON(t, f.srv.URL+"/api/control", `{"action":"wan_set_primary","interface":"eth9"}`)
	body = decodeMessage(t, resp)
	if resp.StatusCode != http.StatusOK || body["ok"] != false || body["message"] != "Invalid interface." {
		t.Errorf("wan_set_primary eth9: %d %v", resp.StatusCode, body)
	}

	resp = postJSON(t, f.srv.URL+"/api/control", `{"action":"vpn_connect","profile":"../../etc/passwd"}`)
	body = decodeMessage(t, resp)
	if body["ok"] != false || body["message"] != "Invalid profile name." {
		t.Errorf("vpn_connect traversal: %v", body)
	}

	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	if len(f.runner.cmds) != 1 {
		t.Errorf("runner called %d times, want only for tor_restart", len(f.runner.cmds))
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestControl_UploadWithQueryAction(t *testing.T) {
	f := newFixture(t, api.Options{})
	body, ct := multipartBody(t, nil, "home.conf", "[Interface]\nPrivateKey = x\n")

	resp, err := http.Post(f.srv.URL+"/api/control.php?action=vpn_upload", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	msg := decodeMessage(t, resp)
	if msg["ok"] != true || msg["message"] != "Profile 'home.conf' uploaded." {
		t.Fatalf("body = %v", msg)
	}
	info, err := os.Stat(filepath.Join(f.profileDir, "home.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %o, want 600", info.Mode().Perm())
	}
}

func TestControl_UploadRejectsExtension(t *testing.T) {
	f := newFixture(t, api.Options{})
	body, ct := multipartBody(t, map[string]string{"action": "vpn_upload"}, "payload.exe", "MZ")

	resp, err := http.Post(f.srv.URL+"/api/control", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	msg := decodeMessage(t, resp)
	if resp.StatusCode != http.StatusOK || msg["ok"] != false || msg["message"] != "Only .conf and .ovpn files allowed." {
		t.Errorf("%d %v", resp.StatusCode, msg)
	}
	if _, err := os.Stat(filepath.Join(f.profileDir, "payload.exe")); !os.IsNotExist(err) {
		t.Error("payload.exe was written")
	}
}

func TestControl_UploadMissingFile(t *testing.T) {
	f := newFixture(t, api.Options{})
	body, ct := multipartBody(t, map[string]string{"action": "vpn_upload"}, "", "")

	resp, err := http.Post(f.srv.URL+"/api/control", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	if msg := decodeMessage(t, resp); msg["message"] != "No file uploaded." {
		t.Errorf("body = %v", msg)
	}
}

func TestAllowedNetworks(t *testing.T) {
	f := newFixture(t, api.Options{
		AllowedNetworks: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})
	resp, err := http.Get(f.srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if body := decodeMessage(t, resp); body["ok"] != false {
		t.Errorf("body = %v", body)
	}

	allowed := newFixture(t, api.Options{
		AllowedNetworks: []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")},
	})
	resp, err = http.Get(allowed.srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("loopback status = %d, want 200", resp.StatusCode)
	}
}

func TestWebRootAndMetrics(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>Tor Router</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "torrouter_up 1\n")
	})
	f := newFixture(t, api.Options{WebRoot: root, Metrics: metrics, MetricsPath: "/metrics"})

	for path, want := range map[string]string{"/": "Tor Router", "/metrics": "torrouter_up 1"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if !strings.Contains(string(data), want) {
			t.Errorf("GET %s = %q, want %q", path, data, want)
		}
	}
}

// chanNotifier lets a test fire wake-ups by hand.
type chanNotifier struct{ ch chan struct{} }

func (n *chanNotifier) Subscribe() (<-chan struct{}, func()) { return n.ch, func() {} }

func TestStream(t *testing.T) {
	wake := &chanNotifier{ch: make(chan struct{}, 1)}
	f := newFixture(t, api.Options{StreamInterval: time.Hour, Wake: wake})

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/status/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("handshake status = %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap status.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if snap.WANState != status.WANNormal {
		t.Errorf("snapshot = %+v", snap)
	}

	wake.ch <- struct{}{}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("snapshot after wake: %v", err)
	}
	f.status.mu.Lock()
	calls := f.status.calls
	f.status.mu.Unlock()
	if calls != 2 {
		t.Errorf("snapshots taken = %d, want 2", calls)
	}
}

func TestStreamDisabled(t *testing.T) {
	f := newFixture(t, api.Options{})
	resp, err := http.Get(f.srv.URL + "/api/status/stream")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestControl_ClientDisconnectDoesNotKillTrigger(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "reloaded")
	script := filepath.Join(dir, "firewall.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 1\ntouch "+marker+"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.ProfileDir = filepath.Join(dir, "vpn")
	cfg.Control.UseSudo = false
	cfg.Control.TriggerTimeout = config.D(10 * time.Second)
	cfg.Control.Triggers.FirewallReload = []string{script}
	d := control.New(cfg, runner.Exec{}, &profiles.Store{Dir: cfg.ProfileDir}, logging.Discard())
	srv := httptest.NewServer(api.New(&stubStatus{}, d, api.Options{}, logging.Discard()).Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/api/control",
		strings.NewReader(`{"action":"firewall_reload"}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if resp, err := http.DefaultClient.Do(req); err == nil {
		_ = resp.Body.Close()
		t.Fatal("request should have been abandoned by the client")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("firewall trigger did not run to completion after the client went away")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
