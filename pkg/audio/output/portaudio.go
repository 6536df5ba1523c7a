//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: The PortAudio callback drains the conduit directly
package output

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/Sendspin/peakd/pkg/conduit"
	"github.com/gordonklaus/portaudio"
)

// PortAudio output implementation
type PortAudio struct {
	stream *portaudio.Stream
	src    *conduit.Conduit
	volume atomic.Int32
	muted  atomic.Bool
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() Output {
	p := &PortAudio{}
	p.volume.Store(100)
	return p
}

// Open initializes PortAudio
func (p *PortAudio) Open(sampleRate, channels int, src *conduit.Conduit) error {
	if src.Channels() != channels {
		return fmt.Errorf("%w: %d vs %d", ErrChannelsDiffer, src.Channels(), channels)
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	p.src = src
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), 0, p.callback)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	p.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		p.stream = nil
		return fmt.Errorf("failed to start stream: %w", err)
	}

	log.Printf("Audio output initialized: %dHz, %d channels (portaudio)", sampleRate, channels)
	return nil
}

// callback runs on the PortAudio thread; out is interleaved
func (p *PortAudio) callback(out []float32) {
	p.src.Process(out, len(out)/p.src.Channels())
	applyVolume(out, int(p.volume.Load()), p.muted.Load())
}

// SetVolume sets the volume (0-100)
func (p *PortAudio) SetVolume(volume int) {
	p.volume.Store(int32(clampVolume(volume)))
}

// SetMuted sets mute state
func (p *PortAudio) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Close releases resources
func (p *PortAudio) Close() error {
	if p.stream == nil {
		return ErrNotOpen
	}
	if err := p.stream.Stop(); err != nil {
		return err
	}
	if err := p.stream.Close(); err != nil {
		return err
	}
	p.stream = nil
	return portaudio.Terminate()
}
