// Package models fetches whisper.cpp ggml models.
package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
)

// DefaultBaseURL hosts the published ggml conversions.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// DefaultModel is multilingual so the default Japanese language works.
const DefaultModel = "base"

// catalog maps short names to ggml file names. The ".en" variants are
// English-only.
var catalog = map[string]string{
	"tiny":     "ggml-tiny.bin",
	"tiny.en":  "ggml-tiny.en.bin",
	"base":     "ggml-base.bin",
	"base.en":  "ggml-base.en.bin",
	"small":    "ggml-small.bin",
	"small.en": "ggml-small.en.bin",
	"medium":   "ggml-medium.bin",
	"large-v3": "ggml-large-v3.bin",
}

// Names lists the downloadable models in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileName returns the ggml file name for a model.
func FileName(name string) (string, error) {
	file, ok := catalog[name]
	if !ok {
		return "", fmt.Errorf("models: unknown model %q (available: %v)", name, Names())
	}
	return file, nil
}

// Downloader fetches models into Dir.
type Downloader struct {
	BaseURL string
	Dir     string
	Client  *http.Client
	// Progress receives human-readable progress; nil discards it.
	Progress io.Writer
}

// Download fetches the named model unless a non-empty copy already exists,
// and returns its path. The file appears under its final name only once
// fully written.
func (d *Downloader) Download(ctx context.Context, name string) (string, error) {
	file, err := FileName(name)
	if err != nil {
		return "", err
	}
	out := d.Progress
	if out == nil {
		out = io.Discard
	}

	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating models dir: %w", err)
	}
	destPath := filepath.Join(d.Dir, file)

	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Fprintf(out, "  Whisper model already exists: %s (%.0f MB)\n", destPath, float64(info.Size())/(1024*1024))
		return destPath, nil
	}

	base := d.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	url := base + "/" + file
	fmt.Fprintf(out, "  Downloading %s\n  Destination: %s\n", url, destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading whisper model: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	pw := &progressWriter{writer: f, out: out, total: resp.ContentLength, label: file}
	written, err := io.Copy(pw, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing model file: %w", err)
	}
	fmt.Fprintf(out, "\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("moving model file: %w", err)
	}
	return destPath, nil
}

// progressWriter wraps an io.Writer and reports download progress to out.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			float64(pw.written)/float64(pw.total)*100)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
