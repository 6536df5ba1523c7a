// ABOUTME: Test fixtures for writing small WAV files
// ABOUTME: Used by package tests that need real decodable audio on disk
package testaudio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes interleaved integer samples to dir/name as a PCM WAV file
// and returns its path. 8-bit samples are written unsigned (0..255).
func WriteWAV(t testing.TB, dir, name string, sampleRate, bitDepth, channels int, samples []int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	if len(samples) > 0 {
		buf := &goaudio.IntBuffer{
			Data: samples,
			Format: &goaudio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: bitDepth,
		}
		if err := enc.Write(buf); err != nil {
			t.Fatalf("encode %s: %v", path, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("finalize %s: %v", path, err)
	}
	return path
}

// Ramp16 returns frames of 16-bit samples where every channel of frame i
// holds i (mod 32768), negated on odd channels, so min/max of a window are easy to predict.
func Ramp16(frames, channels int) []int {
	out := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := (i % 32768)
		for c := 0; c < channels; c++ {
			if c%2 == 1 {
				out[i*channels+c] = -v
			} else {
				out[i*channels+c] = v
			}
		}
	}
	return out
}

// Sine16 returns a 16-bit sine wave at the given frequency and amplitude (0..1)
func Sine16(frames, channels, sampleRate int, freq, amplitude float64) []int {
	out := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			out[i*channels+c] = v
		}
	}
	return out
}
