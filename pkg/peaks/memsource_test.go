// ABOUTME: In-memory sources for peak tests
// ABOUTME: Count reads and can block or fail on demand
package peaks

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/peakd/pkg/source"
)

var errInjected = errors.New("injected read failure")

// memSource serves interleaved samples from memory
type memSource struct {
	path     string
	channels int
	data     []float32
	frames   int64 // reported length; may exceed the data to simulate short files
	stamp    source.Stamp

	reads atomic.Int64

	// gate, when set, blocks every read until closed
	gate chan struct{}

	// failures makes the next n reads fail
	failures atomic.Int32

	mu sync.Mutex
}

func newMemSource(path string, channels int, data []float32) *memSource {
	return &memSource{
		path:     path,
		channels: channels,
		data:     data,
		frames:   int64(len(data) / channels),
		stamp:    source.Stamp{Size: int64(len(data) * 4), ModTime: time.Unix(1700000000, 0)},
	}
}

// randomSource returns a source of uniformly random samples in [-1, 1)
func randomSource(path string, channels, frames int, seed int64) *memSource {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float32, frames*channels)
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return newMemSource(path, channels, data)
}

func (m *memSource) Path() string        { return m.path }
func (m *memSource) Stamp() source.Stamp { return m.stamp }
func (m *memSource) Frames() int64       { return m.frames }
func (m *memSource) Channels() int       { return m.channels }

func (m *memSource) ReadAt(sel source.Channel, start int64, dst []float32) (int, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.reads.Add(1)

	if m.failures.Load() > 0 {
		m.failures.Add(-1)
		return 0, errInjected
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	avail := int64(len(m.data)/m.channels) - start
	if avail <= 0 {
		return 0, nil
	}

	width := 1
	if sel == source.AllChannels {
		width = m.channels
	}
	n := int64(len(dst) / width)
	if n > avail {
		n = avail
	}

	for i := int64(0); i < n; i++ {
		frame := m.data[(start+i)*int64(m.channels):]
		if sel == source.AllChannels {
			copy(dst[i*int64(m.channels):], frame[:m.channels])
		} else {
			dst[i] = frame[sel]
		}
	}
	return int(n), nil
}
