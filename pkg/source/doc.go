// ABOUTME: Sample source package: seekable per-channel access to audio files
// ABOUTME: Also provides the reference-counted, path-deduplicating Registry
// Package source opens audio files for peak reduction.
//
// A Source wraps a decoded stream and exposes seek/read with either one
// channel extracted from the interleaved data or all channels passed through.
// Every read is serialized by the source, so ReadAt can be shared by several
// reducers working on the same file.
//
// A Registry hands out reference-counted Handles keyed by canonical path,
// so two spellings of the same file share one open Source. It also notices
// when a file's size or modification time changes and reports the path
// through its OnChange callback.
//
// Example:
//
//	reg := source.NewRegistry(source.RegistryConfig{SampleRate: 48000})
//	defer reg.Close()
//
//	h, err := reg.Acquire("~/sessions/take1.wav")
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
//	left, err := h.ReadRange(0, 0, 4096)
package source
