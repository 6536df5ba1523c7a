// ABOUTME: Tests for audio types
// ABOUTME: Tests sample normalization functions
package audio

import "testing"

func TestNormalizeInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected float32
	}{
		{"zero", 0, 0},
		{"half", 16384, 0.5},
		{"negative half", -16384, -0.5},
		{"min", -32768, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestNormalizeInt(t *testing.T) {
	tests := []struct {
		name     string
		sample   int
		bitDepth int
		expected float32
	}{
		{"8bit midpoint is silence", 128, 8, 0},
		{"8bit min", 0, 8, -1},
		{"16bit half", 16384, 16, 0.5},
		{"24bit min", -8388608, 24, -1},
		{"24bit half", 4194304, 24, 0.5},
		{"32bit quarter", 536870912, 32, 0.25},
		{"unsupported depth", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeInt(tt.sample, tt.bitDepth)
			if result != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestNormalizeSigned(t *testing.T) {
	if got := NormalizeSigned(-128, 8); got != -1 {
		t.Errorf("expected -1, got %f", got)
	}
	if got := NormalizeSigned(64, 8); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}
	if got := NormalizeSigned(12, 40); got != 0 {
		t.Errorf("expected 0 for invalid depth, got %f", got)
	}
}

func TestFormatFrameBytes(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, BitDepth: 24}
	if got := f.FrameBytes(); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
}
