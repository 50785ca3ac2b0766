// Package output renders stored segments as transcript files.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaz8081/gostt-stream/internal/store"
)

// Format names a transcript file format.
type Format string

const (
	FormatNone     Format = "none"
	FormatSRT      Format = "srt"
	FormatMarkdown Format = "markdown"
)

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatSRT:
		return ".srt"
	case FormatMarkdown:
		return ".md"
	default:
		return ""
	}
}

// RenderSRT writes segs as SubRip cues. Segments with blank text are skipped
// and cue numbers stay contiguous.
func RenderSRT(w io.Writer, segs []store.Segment) error {
	n := 0
	for _, seg := range segs {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			n, srtTimestamp(seg.StartMs), srtTimestamp(seg.EndMs), text); err != nil {
			return err
		}
	}
	return nil
}

// srtTimestamp formats ms as HH:MM:SS,mmm.
func srtTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond
	h := int64(d / time.Hour)
	m := int64(d/time.Minute) % 60
	s := int64(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// RenderMarkdown writes a heading for source followed by one timestamped
// bullet per segment.
func RenderMarkdown(w io.Writer, source string, segs []store.Segment) error {
	if _, err := fmt.Fprintf(w, "# Transcript: %s\n\n", filepath.Base(source)); err != nil {
		return err
	}
	for _, seg := range segs {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "- `%s` %s\n", mdTimestamp(seg.StartMs), text); err != nil {
			return err
		}
	}
	return nil
}

func mdTimestamp(ms int64) string {
	s := ms / 1000
	return fmt.Sprintf("%02d:%02d.%03d", s/60, s%60, ms%1000)
}

// Text joins segment text into a single trimmed line.
func Text(segs []store.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, seg := range segs {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// WriteFile renders segs next to dir using the audio file's base name and
// returns the written path. FormatNone writes nothing and returns "".
func WriteFile(format Format, dir, audioPath string, segs []store.Segment) (string, error) {
	if format == FormatNone || format == "" {
		return "", nil
	}
	ext := format.Ext()
	if ext == "" {
		return "", fmt.Errorf("output: unknown format %q", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("output: create dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	path := filepath.Join(dir, base+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("output: create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	switch format {
	case FormatSRT:
		err = RenderSRT(f, segs)
	case FormatMarkdown:
		err = RenderMarkdown(f, audioPath, segs)
	}
	if err != nil {
		return "", fmt.Errorf("output: write %s: %w", path, err)
	}
	return path, f.Close()
}
