package fetch

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jcarver/ptrwatch/internal/logger"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f := New(logger.NewWithWriter(io.Discard))
	f.initialBackoff = time.Millisecond
	f.maxBackoff = time.Millisecond
	t.Cleanup(f.Cleanup)
	return f
}

func TestDownloadRetries(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "%PDF-1.4 payload")
	}))
	t.Cleanup(server.Close)

	f := newTestFetcher(t)
	path, err := f.Download(server.URL+"/20030461.pdf", "20030461.pdf")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want a retry after the first failure", requests)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "%PDF-1.4 payload" {
		t.Errorf("downloaded content = %q, want server payload", data)
	}
}

func TestDownloadExhaustsAttempts(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	f := newTestFetcher(t)
	f.maxAttempts = 2

	_, err := f.Download(server.URL+"/missing.pdf", "missing.pdf")
	if err == nil {
		t.Fatal("expected error once every attempt failed")
	}
	if requests != 2 {
		t.Errorf("requests = %d, want exactly maxAttempts", requests)
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("error %q should report the attempt count", err)
	}
}

func TestCleanupRemovesTempDir(t *testing.T) {
	f := New(logger.NewWithWriter(io.Discard))

	dir, err := f.CreateTempDir()
	if err != nil {
		t.Fatalf("CreateTempDir failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("temp dir should exist: %v", err)
	}

	f.Cleanup()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir should be removed, stat err = %v", err)
	}

	// A second call is a no-op.
	f.Cleanup()
}
