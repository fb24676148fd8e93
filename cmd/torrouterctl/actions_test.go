package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/torrouter/torrouter/internal/tui"
)

// fakeDaemon answers /api/status and /api/control and records each request
// it saw.
type fakeDaemon struct {
	mu      sync.Mutex
	actions []string
	fail    string
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/status" {
		f.mu.Lock()
		f.actions = append(f.actions, "status")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"vpn_profiles":["home.conf","work.ovpn"]}`))
		return
	}
	action := r.FormValue("action")
	if action == "" {
		var body struct {
			Action string `json:"action"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		action = body.Action
	}
	f.mu.Lock()
	f.actions = append(f.actions, action)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if action == f.fail {
		_, _ = w.Write([]byte(`{"ok":false,"message":"Profile not found.","exit_code":1}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"message":"done"}`))
}

func newDaemon(t *testing.T, fail string) (*fakeDaemon, *CLI) {
	t.Helper()
	f := &fakeDaemon{fail: fail}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, &CLI{URL: srv.URL}
}

func writeProfile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "home.conf")
	if err := os.WriteFile(path, []byte("[Interface]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVPNUploadThenConnect(t *testing.T) {
	f, cli := newDaemon(t, "")
	cmd := &VPNUploadCmd{Path: writeProfile(t), Connect: true}
	if err := cmd.Run(cli); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(f.actions, ","); got != "vpn_upload,vpn_connect" {
		t.Errorf("actions = %q", got)
	}
}

func TestVPNUploadStopsWhenConnectFails(t *testing.T) {
	f, cli := newDaemon(t, "vpn_connect")
	cmd := &VPNUploadCmd{Path: writeProfile(t), Connect: true}
	err := cmd.Run(cli)
	var re *tui.ResultError
	if !errors.As(err, &re) || re.Result.Message != "Profile not found." || err.Error() != "Profile not found. (exit 1)" {
		t.Fatalf("Run error = %v", err)
	}
	if len(f.actions) != 2 {
		t.Errorf("actions = %v", f.actions)
	}
}

func TestSimpleActions(t *testing.T) {
	f, cli := newDaemon(t, "")
	runs := []func() error{
		func() error { return (&CircuitCmd{}).Run(cli) },
		func() error { return (&TorRestartCmd{}).Run(cli) },
		func() error { return (&VPNDisconnectCmd{}).Run(cli) },
		func() error { return (&WANPrimaryCmd{Interface: "wlan0"}).Run(cli) },
		func() error { return (&FirewallReloadCmd{}).Run(cli) },
	}
	for _, run := range runs {
		if err := run(); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	want := "tor_new_circuit,tor_restart,vpn_disconnect,wan_set_primary,firewall_reload"
	if got := strings.Join(f.actions, ","); got != want {
		t.Errorf("actions = %q, want %q", got, want)
	}
}

func TestVPNLsReadsStatusSnapshot(t *testing.T) {
	f, cli := newDaemon(t, "")
	if err := (&VPNLsCmd{}).Run(cli); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(f.actions, ","); got != "status" {
		t.Errorf("requests = %q, want status", got)
	}
	field, _ := reflect.TypeOf(VPNCmd{}).FieldByName("Ls")
	if help := field.Tag.Get("help"); !strings.Contains(help, "status snapshot") || !strings.Contains(help, "15s") {
		t.Errorf("vpn ls help does not mention the snapshot cost: %q", help)
	}
}
