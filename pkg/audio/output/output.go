// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for conduit-driven playback backends
package output

import (
	"errors"

	"github.com/Sendspin/peakd/pkg/conduit"
)

var (
	ErrNotOpen        = errors.New("output not opened")
	ErrChannelsDiffer = errors.New("conduit channel count does not match output")
)

// Output represents an audio output device fed from a conduit
type Output interface {
	// Open starts the device; it pulls frames from src until Close
	Open(sampleRate, channels int, src *conduit.Conduit) error

	// SetVolume sets the software volume (0-100)
	SetVolume(volume int)

	// SetMuted sets mute state
	SetMuted(muted bool)

	// Close releases output resources
	Close() error
}

// applyVolume scales samples in place and clamps them to [-1, 1]
func applyVolume(samples []float32, volume int, muted bool) {
	multiplier := getVolumeMultiplier(volume, muted)
	if multiplier == 1 {
		return
	}

	for i, s := range samples {
		s *= multiplier
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		samples[i] = s
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0
	}
	return float32(clampVolume(volume)) / 100
}

func clampVolume(volume int) int {
	return min(max(volume, 0), 100)
}
