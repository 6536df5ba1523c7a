// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Peak types and sample normalization functions
// Package audio provides fundamental audio types shared by the peak server.
//
// This package defines core types used throughout peakd:
//   - Format: Describes a decoded audio stream (sample rate, channels, bit depth)
//   - Peak: A (min, max) amplitude pair summarizing one output column
//
// It also provides utilities for normalizing integer PCM samples into
// float32 values in [-1.0, 1.0]:
//   - 8-bit (unsigned), 16-bit, 24-bit and 32-bit signed PCM
//   - signed samples of any depth, as FLAC and AIFF deliver them
//
// Example:
//
//	format := audio.Format{
//	    SampleRate: 48000,
//	    Channels:   2,
//	    BitDepth:   24,
//	}
//
//	// Normalize a 16-bit sample
//	f := audio.NormalizeInt16(sample16)
package audio
