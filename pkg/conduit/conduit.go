// ABOUTME: Lock-free single-producer/single-consumer ring of audio frames
// ABOUTME: Hands samples from a regular goroutine to a real-time callback
package conduit

import "sync/atomic"

// Conduit moves interleaved float32 frames from one producer goroutine to
// one consumer goroutine without locks. Write must only be called by the
// producer and Process only by the consumer.
type Conduit struct {
	buf      []float32
	channels int
	capacity uint64 // frames, a power of two
	mask     uint64

	// write and read are monotonically increasing frame counters; their
	// difference is the fill level and wraps safely as uint64
	write atomic.Uint64
	read  atomic.Uint64

	underruns atomic.Uint64
	silence   atomic.Uint64
}

// New creates a conduit holding at least frames frames of channels samples.
// The capacity is rounded up to a power of two.
func New(frames, channels int) *Conduit {
	if channels < 1 {
		channels = 1
	}
	capacity := uint64(1)
	for capacity < uint64(max(frames, 1)) {
		capacity <<= 1
	}

	return &Conduit{
		buf:      make([]float32, capacity*uint64(channels)),
		channels: channels,
		capacity: capacity,
		mask:     capacity - 1,
	}
}

// Channels returns the number of samples per frame
func (c *Conduit) Channels() int { return c.channels }

// Capacity returns the capacity in frames
func (c *Conduit) Capacity() int { return int(c.capacity) }

// Available returns the number of frames ready for Process
func (c *Conduit) Available() int {
	return int(c.write.Load() - c.read.Load())
}

// Free returns the number of frames Write can accept
func (c *Conduit) Free() int {
	return int(c.capacity - (c.write.Load() - c.read.Load()))
}

// Underruns returns how many Process calls found too few frames
func (c *Conduit) Underruns() uint64 { return c.underruns.Load() }

// SilentFrames returns the total frames of silence Process substituted
func (c *Conduit) SilentFrames() uint64 { return c.silence.Load() }

// Write copies up to frames interleaved frames from samples and returns the
// number accepted. It never blocks; a full conduit accepts fewer frames.
func (c *Conduit) Write(samples []float32, frames int) int {
	if avail := len(samples) / c.channels; frames > avail {
		frames = avail
	}
	if frames <= 0 {
		return 0
	}

	w := c.write.Load()
	r := c.read.Load()
	free := int(c.capacity - (w - r))
	if frames > free {
		frames = free
	}
	if frames == 0 {
		return 0
	}

	c.copyIn(w, samples[:frames*c.channels])
	c.write.Store(w + uint64(frames))
	return frames
}

// Process fills out with frames frames and returns how many came from the
// producer. On under-run the remainder is silence and the under-run counter
// increments. It neither allocates nor blocks.
func (c *Conduit) Process(out []float32, frames int) int {
	if avail := len(out) / c.channels; frames > avail {
		frames = avail
	}
	if frames <= 0 {
		return 0
	}

	r := c.read.Load()
	w := c.write.Load()
	got := int(w - r)
	if got > frames {
		got = frames
	}

	if got > 0 {
		c.copyOut(r, out[:got*c.channels])
		c.read.Store(r + uint64(got))
	}

	if got < frames {
		tail := out[got*c.channels : frames*c.channels]
		for i := range tail {
			tail[i] = 0
		}
		c.underruns.Add(1)
		c.silence.Add(uint64(frames - got))
	}
	return got
}

// copyIn writes samples starting at frame index w, wrapping once if needed
func (c *Conduit) copyIn(w uint64, samples []float32) {
	start := int(w&c.mask) * c.channels
	n := copy(c.buf[start:], samples)
	if n < len(samples) {
		copy(c.buf, samples[n:])
	}
}

// copyOut reads samples starting at frame index r, wrapping once if needed
func (c *Conduit) copyOut(r uint64, out []float32) {
	start := int(r&c.mask) * c.channels
	n := copy(out, c.buf[start:])
	if n < len(out) {
		copy(out[n:], c.buf)
	}
}
