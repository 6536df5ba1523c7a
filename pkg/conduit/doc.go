// ABOUTME: Real-time sample conduit package
// ABOUTME: Lock-free frame handoff between a producer and an audio callback
// Package conduit provides a fixed-capacity ring buffer of audio frames for
// one producer and one real-time consumer.
//
// The producer calls Write and handles back-pressure itself (retry later or
// drop); Write never blocks. The consumer calls Process once per audio
// callback with the callback's block size. Process never blocks or
// allocates. When fewer frames are available than requested it outputs
// the available frames followed by silence and counts an under-run.
//
// Example:
//
//	c := conduit.New(8192, 2)
//
//	// producer goroutine
//	n := c.Write(samples, len(samples)/2)
//
//	// audio callback
//	c.Process(out, len(out)/2)
package conduit
