// ABOUTME: Tests for the WAV stream reader
// ABOUTME: Exercises format, seeking and end-of-stream behavior
package decode

import (
	"io"
	"math"
	"testing"

	"github.com/Sendspin/peakd/internal/testaudio"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestWAVDecodeBitDepths(t *testing.T) {
	tests := []struct {
		name     string
		bitDepth int
		samples  []int
		want     []float32
	}{
		{"8-bit unsigned", 8, []int{128, 255, 0, 192}, []float32{0, 127.0 / 128, -1, 0.5}},
		{"16-bit", 16, []int{0, 16384, -32768, -16384}, []float32{0, 0.5, -1, -0.5}},
		{"24-bit", 24, []int{0, 4194304, -8388608, -4194304}, []float32{0, 0.5, -1, -0.5}},
		{"32-bit", 32, []int{0, 1073741824, -2147483648, -1073741824}, []float32{0, 0.5, -1, -0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testaudio.WriteWAV(t, t.TempDir(), "tone.wav", 44100, tt.bitDepth, 2, tt.samples)

			stream, err := Default().Open(path)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer stream.Close()

			f := stream.Format()
			if f.SampleRate != 44100 || f.Channels != 2 || f.BitDepth != tt.bitDepth {
				t.Errorf("unexpected format %+v", f)
			}
			if stream.Frames() != 2 {
				t.Errorf("expected 2 frames, got %d", stream.Frames())
			}

			dst := make([]float32, 8)
			n, err := stream.ReadFrames(dst)
			if err != nil {
				t.Fatalf("ReadFrames failed: %v", err)
			}
			if n != 2 {
				t.Fatalf("expected 2 frames read, got %d", n)
			}
			for i, want := range tt.want {
				if !approx(dst[i], want) {
					t.Errorf("sample %d: expected %f, got %f", i, want, dst[i])
				}
			}

			if n, err := stream.ReadFrames(dst); n != 0 || err != io.EOF {
				t.Errorf("expected (0, EOF) at end, got (%d, %v)", n, err)
			}
		})
	}
}

func TestWAVSeekFrame(t *testing.T) {
	path := testaudio.WriteWAV(t, t.TempDir(), "ramp.wav", 8000, 16, 2, testaudio.Ramp16(1000, 2))

	stream, err := Default().Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	for _, frame := range []int64{500, 10, 999, 0} {
		if err := stream.SeekFrame(frame); err != nil {
			t.Fatalf("SeekFrame(%d) failed: %v", frame, err)
		}
		dst := make([]float32, 2)
		n, err := stream.ReadFrames(dst)
		if err != nil || n != 1 {
			t.Fatalf("ReadFrames after seek to %d: n=%d err=%v", frame, n, err)
		}
		want := float32(frame) / 32768
		if !approx(dst[0], want) || !approx(dst[1], -want) {
			t.Errorf("frame %d: expected (%f, %f), got (%f, %f)", frame, want, -want, dst[0], dst[1])
		}
	}
}

func TestWAVReadAcrossManyCalls(t *testing.T) {
	const frames = 10000
	path := testaudio.WriteWAV(t, t.TempDir(), "long.wav", 8000, 16, 1, testaudio.Ramp16(frames, 1))

	stream, err := Default().Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	total := 0
	dst := make([]float32, 333)
	for {
		n, err := stream.ReadFrames(dst)
		for i := 0; i < n; i++ {
			want := float32(total+i) / 32768
			if !approx(dst[i], want) {
				t.Fatalf("frame %d: expected %f, got %f", total+i, want, dst[i])
			}
		}
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrames failed: %v", err)
		}
	}

	if total != frames {
		t.Errorf("expected %d frames, got %d", frames, total)
	}
}
