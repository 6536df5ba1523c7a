// ABOUTME: Oto-based audio output implementation
// ABOUTME: Oto's player pulls float32 PCM from the conduit through an io.Reader
package output

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/Sendspin/peakd/pkg/conduit"
	"github.com/ebitengine/oto/v3"
)

// Oto output implementation using oto library
type Oto struct {
	otoCtx     *oto.Context
	player     *oto.Player
	reader     *conduitReader
	sampleRate int
	channels   int
}

// NewOto creates a new Oto output
func NewOto() Output {
	return &Oto{}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int, src *conduit.Conduit) error {
	if src.Channels() != channels {
		return fmt.Errorf("%w: %d vs %d", ErrChannelsDiffer, src.Channels(), channels)
	}

	// oto allows one context per process; a format change keeps the old one
	if o.otoCtx != nil && (o.sampleRate != sampleRate || o.channels != channels) {
		log.Printf("Warning: format change detected (%dHz %dch -> %dHz %dch) but oto doesn't support reinitialization",
			o.sampleRate, o.channels, sampleRate, channels)
		return fmt.Errorf("oto context already open at %dHz %dch", o.sampleRate, o.channels)
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		o.otoCtx = ctx
		o.sampleRate = sampleRate
		o.channels = channels
	}

	if o.player != nil {
		o.player.Close()
	}
	o.reader = newConduitReader(src)
	o.player = o.otoCtx.NewPlayer(o.reader)
	o.player.Play()

	log.Printf("Audio output initialized: %dHz, %d channels (oto)", sampleRate, channels)
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	if o.reader != nil {
		o.reader.volume.Store(int32(clampVolume(volume)))
	}
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	if o.reader != nil {
		o.reader.muted.Store(muted)
	}
}

// Close releases output resources
func (o *Oto) Close() error {
	if o.player == nil {
		return ErrNotOpen
	}
	err := o.player.Close()
	o.player = nil
	o.reader = nil
	if err := o.otoCtx.Suspend(); err != nil {
		log.Printf("Warning: oto suspend error: %v", err)
	}
	return err
}

// conduitReader adapts a conduit to the io.Reader oto pulls from. Every
// Read fills p completely; missing frames come back as silence.
type conduitReader struct {
	src     *conduit.Conduit
	scratch []float32
	volume  atomic.Int32
	muted   atomic.Bool
}

func newConduitReader(src *conduit.Conduit) *conduitReader {
	r := &conduitReader{src: src}
	r.volume.Store(100)
	return r
}

func (r *conduitReader) Read(p []byte) (int, error) {
	channels := r.src.Channels()
	frames := len(p) / (4 * channels)
	if frames == 0 {
		return 0, nil
	}

	samples := frames * channels
	if cap(r.scratch) < samples {
		r.scratch = make([]float32, samples)
	}
	buf := r.scratch[:samples]

	r.src.Process(buf, frames)
	applyVolume(buf, int(r.volume.Load()), r.muted.Load())

	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return samples * 4, nil
}
