// ABOUTME: Audio output tests
// ABOUTME: Verifies the conduit reader, volume scaling and backend wiring
package output

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Sendspin/peakd/pkg/conduit"
)

func TestBackendsImplementOutput(t *testing.T) {
	var _ Output = (*PortAudio)(nil)
	var _ Output = (*Oto)(nil)

	if NewPortAudio() == nil || NewOto() == nil {
		t.Fatal("constructor returned nil")
	}
}

func TestOtoCloseBeforeOpen(t *testing.T) {
	if err := NewOto().Close(); err != ErrNotOpen {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestOtoRejectsChannelMismatch(t *testing.T) {
	err := NewOto().Open(48000, 2, conduit.New(64, 1))
	if err == nil {
		t.Fatal("expected an error for a mono conduit on a stereo device")
	}
}

func decodeFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func TestConduitReader(t *testing.T) {
	c := conduit.New(16, 2)
	c.Write([]float32{0.5, -0.5, 0.25, -0.25}, 2)

	r := newConduitReader(c)
	p := make([]byte, 4*2*4) // 4 stereo frames
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(p) {
		t.Fatalf("expected a full read of %d bytes, got %d", len(p), n)
	}

	got := decodeFloats(p)
	want := []float32{0.5, -0.5, 0.25, -0.25, 0, 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
	if c.Underruns() != 1 {
		t.Errorf("expected the short conduit to count an under-run, got %d", c.Underruns())
	}
}

func TestConduitReaderVolume(t *testing.T) {
	c := conduit.New(16, 1)
	r := newConduitReader(c)
	p := make([]byte, 8)

	r.volume.Store(50)
	c.Write([]float32{0.8, -0.4}, 2)
	r.Read(p)
	got := decodeFloats(p)
	if got[0] != 0.4 || got[1] != -0.2 {
		t.Errorf("expected half volume, got %v", got)
	}

	r.muted.Store(true)
	c.Write([]float32{0.8, -0.4}, 2)
	r.Read(p)
	got = decodeFloats(p)
	if got[0] != 0 || got[1] != 0 {
		t.Errorf("expected silence while muted, got %v", got)
	}
}

func TestConduitReaderTinyBuffer(t *testing.T) {
	r := newConduitReader(conduit.New(16, 2))
	n, err := r.Read(make([]byte, 7))
	if n != 0 || err != nil {
		t.Errorf("expected (0, nil) for a buffer smaller than a frame, got (%d, %v)", n, err)
	}
}

func TestApplyVolume(t *testing.T) {
	tests := []struct {
		name   string
		volume int
		muted  bool
		in     float32
		want   float32
	}{
		{"full", 100, false, 0.5, 0.5},
		{"half", 50, false, 0.5, 0.25},
		{"muted", 100, true, 0.5, 0},
		{"over range clamps volume", 150, false, 0.5, 0.5},
		{"negative volume", -10, false, 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := []float32{tt.in, -tt.in}
			applyVolume(s, tt.volume, tt.muted)
			if s[0] != tt.want || s[1] != -tt.want {
				t.Errorf("expected ±%f, got %v", tt.want, s)
			}
		})
	}
}
