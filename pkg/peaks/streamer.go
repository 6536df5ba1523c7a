// ABOUTME: Streamer builds peaks incrementally from interleaved buffers
// ABOUTME: Used for audio that is produced live rather than read from disk
package peaks

import (
	"sync"

	"github.com/Sendspin/peakd/pkg/audio"
)

// Streamer accumulates one peak per channel every FramesPerPeak frames
type Streamer struct {
	channels      int
	framesPerPeak int

	current []audio.Peak
	pending int
	peaks   []Sequence
	frames  int64
	retain  int

	mu sync.Mutex
}

// NewStreamer creates a streamer for interleaved audio with the given
// channel count. Both arguments are clamped to at least 1.
func NewStreamer(channels, framesPerPeak int) *Streamer {
	if channels < 1 {
		channels = 1
	}
	if framesPerPeak < 1 {
		framesPerPeak = 1
	}
	return &Streamer{
		channels:      channels,
		framesPerPeak: framesPerPeak,
		current:       make([]audio.Peak, channels),
		peaks:         make([]Sequence, channels),
	}
}

// SetRetention keeps only the most recent n completed peaks per channel.
// Zero keeps every peak.
func (s *Streamer) SetRetention(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retain = max(n, 0)
	for c := range s.peaks {
		s.trimLocked(c)
	}
}

// Write consumes frames of interleaved samples
func (s *Streamer) Write(samples []float32, frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if avail := len(samples) / s.channels; frames > avail {
		frames = avail
	}

	for f := 0; f < frames; f++ {
		frame := samples[f*s.channels : (f+1)*s.channels]
		for c, v := range frame {
			if s.pending == 0 {
				s.current[c] = audio.Peak{Min: v, Max: v}
				continue
			}
			if v < s.current[c].Min {
				s.current[c].Min = v
			}
			if v > s.current[c].Max {
				s.current[c].Max = v
			}
		}

		s.pending++
		s.frames++
		if s.pending == s.framesPerPeak {
			s.emitLocked()
		}
	}
}

// Flush emits the partially filled peak, if any
func (s *Streamer) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending > 0 {
		s.emitLocked()
	}
}

func (s *Streamer) emitLocked() {
	for c := range s.current {
		s.peaks[c] = append(s.peaks[c], s.current[c])
		if s.retain > 0 && len(s.peaks[c]) >= 2*s.retain {
			s.trimLocked(c)
		}
	}
	s.pending = 0
}

// trimLocked drops all but the retained peaks, reusing the backing array
func (s *Streamer) trimLocked(c int) {
	if s.retain == 0 || len(s.peaks[c]) <= s.retain {
		return
	}
	seq := s.peaks[c]
	s.peaks[c] = seq[:copy(seq, seq[len(seq)-s.retain:])]
}

// Peaks returns a copy of the retained completed peaks of channel
func (s *Streamer) Peaks(channel int) Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel < 0 || channel >= s.channels {
		return nil
	}
	return append(Sequence(nil), s.peaks[channel]...)
}

// Latest returns the most recent completed peak of every channel
func (s *Streamer) Latest() []audio.Peak {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]audio.Peak, s.channels)
	for c, seq := range s.peaks {
		if len(seq) > 0 {
			out[c] = seq[len(seq)-1]
		}
	}
	return out
}

// Frames returns the number of frames written so far
func (s *Streamer) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
