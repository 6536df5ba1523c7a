// ABOUTME: Source wraps a decoded audio stream with seek and channel reads
// ABOUTME: Single-channel reads de-interleave through a reused scratch buffer
package source

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/Sendspin/peakd/pkg/audio"
	"github.com/Sendspin/peakd/pkg/audio/decode"
)

// Channel selects one channel by index, or AllChannels for interleaved data
type Channel int

// AllChannels passes interleaved frames through unchanged
const AllChannels Channel = -1

// WarnFrames is the default read size above which a warning is logged
const WarnFrames = 1 << 20

// Option configures Open
type Option func(*options)

type options struct {
	decoders   *decode.Registry
	warnFrames int
}

// WithDecoders selects the decoder registry used to open files
func WithDecoders(r *decode.Registry) Option {
	return func(o *options) { o.decoders = r }
}

// WithWarnFrames sets the read size that triggers a suspicious-read warning
func WithWarnFrames(n int) Option {
	return func(o *options) { o.warnFrames = n }
}

// Source is one open audio file
type Source struct {
	path       string
	stream     decode.Stream
	format     audio.Format
	frames     int64
	warnFrames int

	// scratch holds interleaved frames for single-channel extraction
	scratch []float32
	closed  bool

	mu sync.Mutex
}

// Open decodes path and checks its sample rate against expectedRate.
// An expectedRate of 0 accepts any rate.
func Open(path string, expectedRate int, opts ...Option) (*Source, error) {
	o := options{warnFrames: WarnFrames}
	for _, opt := range opts {
		opt(&o)
	}
	if o.decoders == nil {
		o.decoders = decode.Default()
	}

	stream, err := o.decoders.Open(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		case errors.Is(err, decode.ErrUnknownExtension),
			errors.Is(err, decode.ErrInvalidData),
			errors.Is(err, decode.ErrUnsupportedEncoding):
			return nil, fmt.Errorf("%w: %s: %v", ErrFormatUnsupported, path, err)
		default:
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
	}

	format := stream.Format()
	if expectedRate > 0 && format.SampleRate != expectedRate {
		stream.Close()
		return nil, fmt.Errorf("%w: %s is %d Hz, session is %d Hz",
			ErrSampleRateMismatch, path, format.SampleRate, expectedRate)
	}
	if format.Channels < 1 {
		stream.Close()
		return nil, fmt.Errorf("%w: %s has no channels", ErrFormatUnsupported, path)
	}

	frames := stream.Frames()
	if frames < 0 {
		if frames, err = countFrames(stream); err != nil {
			stream.Close()
			return nil, fmt.Errorf("failed to measure %s: %w", path, err)
		}
	}

	return &Source{
		path:       path,
		stream:     stream,
		format:     format,
		frames:     frames,
		warnFrames: o.warnFrames,
	}, nil
}

// countFrames scans a stream of unknown length once and rewinds it
func countFrames(stream decode.Stream) (int64, error) {
	buf := make([]float32, 8192*stream.Format().Channels)
	var total int64
	for {
		n, err := stream.ReadFrames(buf)
		total += int64(n)
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return total, stream.SeekFrame(0)
}

func (s *Source) Path() string         { return s.path }
func (s *Source) Frames() int64        { return s.frames }
func (s *Source) Channels() int        { return s.format.Channels }
func (s *Source) SampleRate() int      { return s.format.SampleRate }
func (s *Source) Format() audio.Format { return s.format }

// Seek positions the source so the next Read starts at frame
func (s *Source) Seek(frame int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.stream.SeekFrame(frame)
}

// Read reads up to frames frames from the current position. A channel
// selection returns one sample per frame; AllChannels returns interleaved
// frames. At end of file it returns the frames that were available, and
// io.EOF once nothing is left.
func (s *Source) Read(sel Channel, frames int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := make([]float32, frames*s.width(sel))
	n, err := s.readLocked(sel, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 && frames > 0 {
		return nil, io.EOF
	}
	return dst[:n*s.width(sel)], nil
}

// ReadAt seeks to start and fills dst in one atomic step. It returns the
// number of frames read, which is short only at end of file.
func (s *Source) ReadAt(sel Channel, start int64, dst []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if err := s.stream.SeekFrame(start); err != nil {
		return 0, fmt.Errorf("seek %s to %d: %w", s.path, start, err)
	}
	return s.readLocked(sel, dst)
}

// ReadRange returns the frames in [start, end). It panics if end <= start.
func (s *Source) ReadRange(sel Channel, start, end int64) ([]float32, error) {
	if end <= start {
		panic(fmt.Sprintf("source: ReadRange with end %d <= start %d", end, start))
	}

	dst := make([]float32, int(end-start)*s.width(sel))
	n, err := s.ReadAt(sel, start, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n*s.width(sel)], nil
}

// Close releases the decoder and the file
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.scratch = nil
	return s.stream.Close()
}

func (s *Source) width(sel Channel) int {
	if sel == AllChannels {
		return s.format.Channels
	}
	return 1
}

func (s *Source) readLocked(sel Channel, dst []float32) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}

	ch := s.format.Channels
	if sel != AllChannels && (sel < 0 || int(sel) >= ch) {
		return 0, fmt.Errorf("%w: %d of %d", ErrInvalidChannel, sel, ch)
	}

	frames := len(dst) / s.width(sel)
	if s.warnFrames > 0 && frames > s.warnFrames {
		log.Printf("source: suspicious read of %d frames from %s, callers should chunk", frames, s.path)
	}

	// interleaved passthrough, also the fast path for mono files
	if sel == AllChannels || ch == 1 {
		return s.readFull(dst[:frames*ch])
	}

	need := frames * ch
	if cap(s.scratch) < need {
		s.scratch = make([]float32, need)
	}
	scratch := s.scratch[:need]

	n, err := s.readFull(scratch)
	for i := 0; i < n; i++ {
		dst[i] = scratch[i*ch+int(sel)]
	}
	return n, err
}

// readFull reads whole frames until dst is full or the stream ends
func (s *Source) readFull(dst []float32) (int, error) {
	ch := s.format.Channels
	total := 0
	for total*ch < len(dst) {
		n, err := s.stream.ReadFrames(dst[total*ch:])
		total += n
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return total, fmt.Errorf("read %s: %w", s.path, err)
		}
	}
	return total, nil
}
