//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"errors"

	"github.com/Sendspin/peakd/pkg/conduit"
)

var errNoPortAudio = errors.New("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio output implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() Output {
	return &PortAudio{}
}

// Open initializes PortAudio
func (p *PortAudio) Open(sampleRate, channels int, src *conduit.Conduit) error {
	return errNoPortAudio
}

func (p *PortAudio) SetVolume(volume int) {}

func (p *PortAudio) SetMuted(muted bool) {}

// Close releases resources
func (p *PortAudio) Close() error {
	return errNoPortAudio
}
