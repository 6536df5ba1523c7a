// ABOUTME: Audio output package for conduit-driven playback
// ABOUTME: Provides the Output interface with oto and PortAudio backends
// Package output plays audio pulled from a conduit.
//
// The device callback (or oto's reader goroutine) drains the conduit with
// Process, so the producer side never waits on the device and an empty
// conduit plays silence.
//
// Example:
//
//	c := conduit.New(48000/2, 2)
//	out := output.NewOto()
//	err := out.Open(48000, 2, c)
//	c.Write(samples, frames)
package output
