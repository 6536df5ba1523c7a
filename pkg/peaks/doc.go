// ABOUTME: Peak reduction, caching and persistence package
// ABOUTME: Turns audio frames into min/max sequences at any resolution
// Package peaks computes and caches waveform summaries.
//
// A Reducer scans a frame range of one channel and emits one audio.Peak per
// output column, where a column spans a real-valued number of frames
// (frames per peak, "fpp"). Column k covers
//
//	[round(start + k*fpp), round(start + (k+1)*fpp))
//
// so rounding never accumulates across columns.
//
// A Cache answers fill requests from memory. Requests whose column
// boundaries all fall on a power-of-two tier are recombined from tier
// blocks, which are shared by every zoom level that aligns with the tier;
// other requests are reduced exactly and cached under their own key.
// Concurrent fills of the same key share one reduction, errors are never
// cached, and a Store can persist tier blocks across restarts.
//
// A Streamer builds peaks incrementally from interleaved buffers, for
// audio that is being produced rather than read from disk.
package peaks
