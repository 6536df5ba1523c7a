// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats and PCM sample normalization
package audio

// Format describes a decoded audio stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// FrameBytes returns the size in bytes of one interleaved PCM frame
func (f Format) FrameBytes() int {
	return f.Channels * ((f.BitDepth + 7) / 8)
}

// NormalizeInt16 converts a 16-bit sample to float32 in [-1, 1)
func NormalizeInt16(sample int16) float32 {
	return float32(sample) / 32768.0
}

// NormalizeInt converts a signed integer sample of the given bit depth to
// float32 in [-1, 1). 8-bit samples are unsigned, as stored in WAV files.
func NormalizeInt(sample int, bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return float32(sample-128) / 128.0
	case 16:
		return float32(sample) / 32768.0
	case 24:
		return float32(sample) / 8388608.0
	case 32:
		return float32(float64(sample) / 2147483648.0)
	default:
		if bitDepth <= 0 || bitDepth > 32 {
			return 0
		}
		return float32(float64(sample) / float64(int64(1)<<(bitDepth-1)))
	}
}

// NormalizeSigned converts a signed sample of any bit depth up to 32,
// including 8-bit, to float32 in [-1, 1). Used by decoders whose 8-bit
// samples are already signed (FLAC, AIFF).
func NormalizeSigned(sample int32, bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		return 0
	}
	return float32(float64(sample) / float64(int64(1)<<(bitDepth-1)))
}
