// ABOUTME: Audio file decoding package for peak generation
// ABOUTME: Provides seekable Stream readers for WAV, AIFF, FLAC, MP3 and Ogg Vorbis
// Package decode provides seekable audio file readers.
//
// Supports: WAV and AIFF (8/16/24/32-bit PCM), FLAC, MP3, Ogg Vorbis
//
// All streams yield interleaved float32 samples normalized to [-1, 1]
// and can be positioned at any frame, which is what the peak reducer
// needs to scan arbitrary ranges of a file.
//
// Example:
//
//	stream, err := decode.Default().Open("take1.wav")
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	buf := make([]float32, 4096*stream.Format().Channels)
//	frames, err := stream.ReadFrames(buf)
package decode
