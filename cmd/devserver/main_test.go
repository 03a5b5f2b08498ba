package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func testRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<title>forest</title>"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	for _, key := range []string{"PORT", "ROOT", "HOST", "OPEN_BROWSER", "ACCESS_DB", "LOG_LEVEL", "CONFIG"} {
		t.Setenv("DEVSERVER_"+key, "")
	}
	return root
}

func TestRun_AllPortsBusy(t *testing.T) {
	root := testRoot(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	var stdout, stderr bytes.Buffer
	args := []string{"-no-fallback", "-no-browser", "-host", "127.0.0.1", "-dir", root, port}
	code := run(args, make(chan os.Signal), &stdout, &stderr)

	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Pass a free port explicitly") {
		t.Errorf("expected guidance on stderr, got %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), port) {
		t.Errorf("expected tried port %s on stderr, got %q", port, stderr.String())
	}
	if strings.Contains(stdout.String(), "Game dev server running") {
		t.Error("banner must not be printed when no port is bound")
	}
}

func TestRun_StopsOnInterrupt(t *testing.T) {
	root := testRoot(t)

	stop := make(chan os.Signal, 1)
	stop <- os.Interrupt

	var stdout, stderr bytes.Buffer
	args := []string{"-no-fallback", "-no-browser", "-host", "127.0.0.1", "-dir", root, "0"}
	code := run(args, stop, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Game dev server running") {
		t.Errorf("expected banner, got %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), root) {
		t.Errorf("expected served directory in banner, got %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "Server stopped") {
		t.Errorf("expected stop message, got %q", stdout.String())
	}
}

func TestRun_RecordsToAccessDB(t *testing.T) {
	root := testRoot(t)
	dbPath := filepath.Join(t.TempDir(), "access.db")

	stop := make(chan os.Signal, 1)
	stop <- os.Interrupt

	var stdout, stderr bytes.Buffer
	args := []string{"-no-fallback", "-no-browser", "-host", "127.0.0.1", "-dir", root, "-access-db", dbPath, "0"}
	if code := run(args, stop, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr.String())
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected access database to be created, got %v", err)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	root := testRoot(t)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "invalid port", args: []string{"-dir", root, "abc"}, code: 2},
		{name: "missing root", args: []string{"-dir", filepath.Join(root, "missing")}, code: 2},
		{name: "bad log level", args: []string{"-dir", root, "-log-level", "loud"}, code: 2},
		{name: "help", args: []string{"-h"}, code: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, make(chan os.Signal), &stdout, &stderr); code != tt.code {
				t.Errorf("expected exit code %d, got %d (stderr %q)", tt.code, code, stderr.String())
			}
			if stdout.Len() != 0 {
				t.Errorf("expected nothing on stdout, got %q", stdout.String())
			}
		})
	}
}
