package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

// TestWriteWAVRoundTrip encodes samples and decodes them back, checking
// format and amplitude clamping.
func TestWriteWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "clip.wav")
	samples := []float32{0, 0.5, -0.5, 2.0, -2.0}

	if err := WriteWAV(path, samples, 16000); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}

	if buf.Format.NumChannels != 1 || buf.Format.SampleRate != 16000 {
		t.Fatalf("format = %+v, want mono 16k", buf.Format)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}

	// Out-of-range inputs must clamp to full scale.
	if buf.Data[3] != 32767 || buf.Data[4] != -32767 {
		t.Fatalf("clamped samples = %d, %d", buf.Data[3], buf.Data[4])
	}
	half := float32(0.5)
	if buf.Data[1] != int(half*32767) {
		t.Fatalf("mid-scale sample = %d", buf.Data[1])
	}
}

// TestWriteWAVRejectsEmptyInput refuses to write a silent zero-length file.
func TestWriteWAVRejectsEmptyInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := WriteWAV(path, nil, 16000); err == nil {
		t.Fatal("expected error for empty samples")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("no file should be created for empty input")
	}
}

// TestBytesToFloat32 decodes little-endian float32 frames and ignores a
// trailing short read.
func TestBytesToFloat32(t *testing.T) {
	input := []float32{0.25, -1, 3.5}
	data := make([]byte, 0, len(input)*4+2)
	for _, v := range input {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		data = append(data, b[:]...)
	}
	data = append(data, 0xAA, 0xBB)

	got := bytesToFloat32(data, uint32(len(input)+1))
	if len(got) != len(input) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(input))
	}
	for i, v := range input {
		if got[i] != v {
			t.Fatalf("sample %d = %v, want %v", i, got[i], v)
		}
	}
}
