package audio

import (
	"testing"
)

func TestNewRecorderAndClose(t *testing.T) {
	r, err := NewRecorder(16000, 1)
	if err != nil {
		t.Skipf("no audio backend available: %v", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	if r.sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", r.sampleRate)
	}
	if r.channels != 1 {
		t.Errorf("channels = %d, want 1", r.channels)
	}
	if r.IsRecording() {
		t.Error("IsRecording() should be false after creation")
	}
	if samples := r.Stop(); samples != nil {
		t.Errorf("Stop() without Start() should return nil, got %d samples", len(samples))
	}
}

func TestBytesToInt16(t *testing.T) {
	data := []byte{
		0xff, 0x7f, // 32767
		0x00, 0x80, // -32768
		0x01, 0x00, // 1
	}
	samples := bytesToInt16(data, 3)

	want := []int16{32767, -32768, 1}
	if len(samples) != len(want) {
		t.Fatalf("bytesToInt16() returned %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("samples[%d] = %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestBytesToInt16ShortBuffer(t *testing.T) {
	// Three bytes hold one whole sample; the trailing byte is dropped.
	samples := bytesToInt16([]byte{0x01, 0x00, 0x02}, 2)
	if len(samples) != 1 {
		t.Fatalf("bytesToInt16() returned %d samples, want 1", len(samples))
	}
	if samples[0] != 1 {
		t.Errorf("samples[0] = %d, want 1", samples[0])
	}
}
