package models

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFileName(t *testing.T) {
	got, err := FileName("base")
	if err != nil || got != "ggml-base.bin" {
		t.Errorf("FileName(base) = %q, %v", got, err)
	}
	if _, err := FileName("huge"); err == nil {
		t.Error("FileName with unknown model should return error")
	}
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("Names() not sorted: %v", names)
		}
	}
}

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("g"), 4096)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/ggml-tiny.bin" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var progress bytes.Buffer
	d := &Downloader{BaseURL: srv.URL, Dir: t.TempDir(), Progress: &progress}

	path, err := d.Download(context.Background(), "tiny")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if path != filepath.Join(d.Dir, "ggml-tiny.bin") {
		t.Errorf("path = %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded %d bytes, want %d", len(got), len(payload))
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	// Second call finds the existing file.
	if _, err := d.Download(context.Background(), "tiny"); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
	if !strings.Contains(progress.String(), "already exists") {
		t.Errorf("progress output = %q", progress.String())
	}
}

func TestDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := &Downloader{BaseURL: srv.URL, Dir: t.TempDir()}
	if _, err := d.Download(context.Background(), "base"); err == nil {
		t.Fatal("Download() should fail on HTTP 404")
	}
	if _, err := os.Stat(filepath.Join(d.Dir, "ggml-base.bin")); !os.IsNotExist(err) {
		t.Error("partial model file created")
	}
}

func TestProgressWriter(t *testing.T) {
	var dst, out bytes.Buffer
	pw := &progressWriter{writer: &dst, out: &out, total: 2 * 1024 * 1024, label: "test"}

	data := make([]byte, 1024*1024)
	n, err := pw.Write(data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(data) || pw.written != int64(len(data)) {
		t.Errorf("written = %d, want %d", pw.written, len(data))
	}
	if !strings.Contains(out.String(), "50%") {
		t.Errorf("progress = %q, want 50%%", out.String())
	}
}
