package runner

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestWritePidFile_FreshPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "wifi-sentinel.pid")

	if err := WritePidFile(path); err != nil {
		t.Fatalf("WritePidFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("pid file does not contain a number: %q", data)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected own pid %d, got %d", os.Getpid(), pid)
	}
}

func TestWritePidFile_ReplacesStalePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifi-sentinel.pid")
	// Max pid on Linux is bounded well below this, so the marker is stale.
	if err := os.WriteFile(path, []byte("99999999\n"), 0o644); err != nil {
		t.Fatalf("seeding stale pid file: %v", err)
	}

	if err := WritePidFile(path); err != nil {
		t.Fatalf("expected stale marker to be replaced, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("expected own pid in file, got %q", data)
	}
}

func TestWritePidFile_RefusesLivePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifi-sentinel.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("seeding pid file: %v", err)
	}

	if err := WritePidFile(path); err == nil {
		t.Fatalf("expected an error for a live pid marker")
	}
}

func TestWritePidFile_GarbageMarkerIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifi-sentinel.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatalf("seeding pid file: %v", err)
	}

	if err := WritePidFile(path); err != nil {
		t.Fatalf("expected garbage marker to be replaced, got %v", err)
	}
}

func TestRemovePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifi-sentinel.pid")
	if err := WritePidFile(path); err != nil {
		t.Fatalf("WritePidFile failed: %v", err)
	}

	RemovePidFile(path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected pid file to be removed")
	}
}
