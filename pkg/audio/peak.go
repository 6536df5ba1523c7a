// ABOUTME: Peak type describing the amplitude envelope of one output column
// ABOUTME: Includes merging and normalization helpers used by the peak cache
package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// PeakSize is the encoded size of a Peak on the wire (two float32 values)
const PeakSize = 8

// ErrPeakData is returned when encoded peak data is not a whole number of records
var ErrPeakData = errors.New("peak data length is not a multiple of 8")

// Peak is the (min, max) amplitude of the frames covered by one column.
// Values outside [-1, 1] indicate clipping and are kept as-is.
type Peak struct {
	Min float32
	Max float32
}

// Merge returns a peak covering both p and o
func (p Peak) Merge(o Peak) Peak {
	if o.Min < p.Min {
		p.Min = o.Min
	}
	if o.Max > p.Max {
		p.Max = o.Max
	}
	return p
}

// Clipped reports whether either extremum lies outside [-1, 1]
func (p Peak) Clipped() bool {
	return p.Min < -1 || p.Max > 1
}

// NormalizationFactor returns the gain that brings the larger of |min| and
// |max| to full scale, assuming p summarizes the whole range to normalize.
// A silent peak yields 1.
func (p Peak) NormalizationFactor() float32 {
	hi := math.Abs(float64(p.Max))
	lo := math.Abs(float64(p.Min))
	m := math.Max(hi, lo)
	if m == 0 {
		return 1
	}
	return float32(1 / m)
}

// MergePeaks reduces a run of peaks into one. An empty run yields Peak{}.
func MergePeaks(peaks []Peak) Peak {
	if len(peaks) == 0 {
		return Peak{}
	}
	p := peaks[0]
	for _, o := range peaks[1:] {
		p = p.Merge(o)
	}
	return p
}

// AppendPeaks appends peaks as little-endian (min, max) float32 pairs
func AppendPeaks(dst []byte, peaks []Peak) []byte {
	for _, p := range peaks {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(p.Min))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(p.Max))
	}
	return dst
}

// DecodePeaks parses little-endian (min, max) float32 pairs
func DecodePeaks(b []byte) ([]Peak, error) {
	if len(b)%PeakSize != 0 {
		return nil, ErrPeakData
	}
	peaks := make([]Peak, len(b)/PeakSize)
	for i := range peaks {
		off := i * PeakSize
		peaks[i] = Peak{
			Min: math.Float32frombits(binary.LittleEndian.Uint32(b[off:])),
			Max: math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:])),
		}
	}
	return peaks, nil
}
