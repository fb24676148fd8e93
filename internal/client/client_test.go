package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/torrouter/torrouter/internal/client"
	"github.com/torrouter/torrouter/internal/control"
)

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"services":{"tor":"active"},"tor_exit_ip":"1.2.3.4","wan_state":"failover","timestamp":42}`)
	}))
	defer srv.Close()

	snap, err := client.New(srv.URL + "/").Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Services["tor"] != "active" || snap.WANState != "failover" || snap.Timestamp != 42 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStatus_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"ok":false,"message":"Forbidden"}`)
	}))
	defer srv.Close()

	_, err := client.New(srv.URL).Status(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Forbidden") {
		t.Errorf("err = %v, want Forbidden", err)
	}
}

func TestControl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req control.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.Action != "wan_set_primary" || req.Interface != "wlan0" {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, `{"ok":true,"message":"primary set to wlan0","interface":"wlan0","exit_code":0}`)
	}))
	defer srv.Close()

	res, err := client.New(srv.URL).Control(context.Background(), control.Request{Action: "wan_set_primary", Interface: "wlan0"})
	if err != nil {
		t.Fatalf("Control: %v", err)
	}
	if !res.OK || res.Interface != "wlan0" || res.ExitCode == nil {
		t.Errorf("result = %+v", res)
	}
}

func TestControl_UnknownActionIsAResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"message":"Unknown action: nope"}`)
	}))
	defer srv.Close()

	res, err := client.New(srv.URL).Control(context.Background(), control.Request{Action: "nope"})
	if err != nil {
		t.Fatalf("Control: %v", err)
	}
	if res.OK || res.Message != "Unknown action: nope" {
		t.Errorf("result = %+v", res)
	}
}

func TestUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "office.ovpn")
	if err := os.WriteFile(path, []byte("client\n"), 0600); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if r.FormValue("action") != "vpn_upload" {
			t.Errorf("action = %q", r.FormValue("action"))
		}
		_, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"message":"Profile '`+hdr.Filename+`' uploaded.","profile":"`+hdr.Filename+`"}`)
	}))
	defer srv.Close()

	res, err := client.New(srv.URL).Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.OK || res.Profile != "office.ovpn" {
		t.Errorf("result = %+v", res)
	}
}

func TestControl_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := client.New(srv.URL).Control(context.Background(), control.Request{Action: "tor_restart"}); err == nil {
		t.Error("expected error for non-JSON response")
	}
}
