// ABOUTME: Tests for the Peak type
// ABOUTME: Covers merging, clipping detection and normalization factors
package audio

import "testing"

func TestPeakMerge(t *testing.T) {
	a := Peak{Min: -0.25, Max: 0.5}
	b := Peak{Min: -0.75, Max: 0.1}

	got := a.Merge(b)
	if got.Min != -0.75 || got.Max != 0.5 {
		t.Errorf("unexpected merge result: %+v", got)
	}
}

func TestMergePeaks(t *testing.T) {
	if got := MergePeaks(nil); got != (Peak{}) {
		t.Errorf("expected zero peak for empty run, got %+v", got)
	}

	peaks := []Peak{{-0.1, 0.2}, {-0.4, 0.1}, {0.05, 0.9}}
	got := MergePeaks(peaks)
	if got.Min != -0.4 || got.Max != 0.9 {
		t.Errorf("unexpected merge result: %+v", got)
	}
}

func TestPeakClipped(t *testing.T) {
	tests := []struct {
		name string
		peak Peak
		want bool
	}{
		{"in range", Peak{-1, 1}, false},
		{"over", Peak{0, 1.2}, true},
		{"under", Peak{-1.01, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.peak.Clipped(); got != tt.want {
				t.Errorf("Clipped() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeakNormalizationFactor(t *testing.T) {
	tests := []struct {
		name string
		peak Peak
		want float32
	}{
		{"silence", Peak{0, 0}, 1},
		{"max dominates", Peak{-0.25, 0.5}, 2},
		{"min dominates", Peak{-0.5, 0.25}, 2},
		{"clipped", Peak{-2, 1}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.peak.NormalizationFactor(); got != tt.want {
				t.Errorf("NormalizationFactor() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPeakEncoding(t *testing.T) {
	peaks := []Peak{{-0.5, 0.25}, {-1.5, 2}, {0, 0}}

	b := AppendPeaks(nil, peaks)
	if len(b) != len(peaks)*PeakSize {
		t.Fatalf("expected %d bytes, got %d", len(peaks)*PeakSize, len(b))
	}

	// min of the first record, little-endian -0.5
	if b[0] != 0x00 || b[1] != 0x00 || b[2] != 0x00 || b[3] != 0xbf {
		t.Errorf("unexpected byte layout: % x", b[:4])
	}

	got, err := DecodePeaks(b)
	if err != nil {
		t.Fatalf("DecodePeaks failed: %v", err)
	}
	for i := range peaks {
		if got[i] != peaks[i] {
			t.Errorf("peak %d: expected %+v, got %+v", i, peaks[i], got[i])
		}
	}

	if _, err := DecodePeaks(b[:5]); err != ErrPeakData {
		t.Errorf("expected ErrPeakData, got %v", err)
	}
}
