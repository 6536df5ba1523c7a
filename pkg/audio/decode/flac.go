// ABOUTME: FLAC stream backed by mewkiz/flac
// ABOUTME: Seeks to the containing FLAC frame then discards up to the target
package decode

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"

	"github.com/Sendspin/peakd/pkg/audio"
)

// FLAC decodes native FLAC streams
type FLAC struct{}

type flacStream struct {
	rs      io.ReadSeekCloser
	stream  *flac.Stream
	format  audio.Format
	frames  int64
	pending []float32
	pos     int64
}

// Decode parses the FLAC stream info block
func (FLAC) Decode(rs io.ReadSeekCloser) (Stream, error) {
	stream, err := flac.NewSeek(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	info := stream.Info
	if info.NChannels == 0 || info.SampleRate == 0 {
		return nil, fmt.Errorf("%w: FLAC stream info incomplete", ErrInvalidData)
	}

	frames := int64(info.NSamples)
	if frames == 0 {
		// zero in STREAMINFO means the total is unknown
		frames = -1
	}

	return &flacStream{
		rs:     rs,
		stream: stream,
		format: audio.Format{
			SampleRate: int(info.SampleRate),
			Channels:   int(info.NChannels),
			BitDepth:   int(info.BitsPerSample),
		},
		frames: frames,
	}, nil
}

func (s *flacStream) Format() audio.Format { return s.format }
func (s *flacStream) Frames() int64        { return s.frames }
func (s *flacStream) Close() error         { return s.rs.Close() }

func (s *flacStream) ReadFrames(dst []float32) (int, error) {
	ch := s.format.Channels
	if len(dst) < ch {
		return 0, nil
	}

	if len(s.pending) == 0 {
		if err := s.decodeNext(); err != nil {
			return 0, err
		}
	}

	n := copy(dst[:len(dst)/ch*ch], s.pending)
	s.pending = s.pending[n:]
	frames := n / ch
	s.pos += int64(frames)
	return frames, nil
}

// decodeNext parses one FLAC frame into the interleaved pending buffer
func (s *flacStream) decodeNext() error {
	frame, err := s.stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("flac read failed: %w", err)
	}

	ch := s.format.Channels
	block := int(frame.BlockSize)
	if cap(s.pending) < block*ch {
		s.pending = make([]float32, block*ch)
	}
	s.pending = s.pending[:block*ch]

	for i := 0; i < block; i++ {
		for c := 0; c < ch; c++ {
			s.pending[i*ch+c] = audio.NormalizeSigned(frame.Subframes[c].Samples[i], s.format.BitDepth)
		}
	}
	return nil
}

func (s *flacStream) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if s.frames >= 0 && frame > s.frames {
		frame = s.frames
	}

	s.pending = s.pending[:0]
	if s.frames >= 0 && frame == s.frames {
		s.pos = frame
		return nil
	}

	start, err := s.stream.Seek(uint64(frame))
	if err != nil {
		// fall back to a linear scan from the beginning
		if _, err := s.rs.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("flac rewind failed: %w", err)
		}
		stream, err := flac.NewSeek(s.rs)
		if err != nil {
			return fmt.Errorf("flac reopen failed: %w", err)
		}
		s.stream = stream
		start = 0
	}

	s.pos = int64(start)
	return discardFrames(s, frame-s.pos)
}
