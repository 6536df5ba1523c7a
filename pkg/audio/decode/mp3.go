// ABOUTME: MP3 stream backed by hajimehoshi/go-mp3
// ABOUTME: The decoder always yields 16-bit stereo, so positions map to bytes
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Sendspin/peakd/pkg/audio"
)

const mp3FrameBytes = 4

// MP3 decodes MPEG-1/2 Layer III files
type MP3 struct{}

type mp3Stream struct {
	rs     io.ReadSeekCloser
	dec    *mp3.Decoder
	frames int64
	raw    []byte
	pos    int64
}

// Decode reads the first MP3 frame header and measures the stream length
func (MP3) Decode(rs io.ReadSeekCloser) (Stream, error) {
	dec, err := mp3.NewDecoder(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	frames := int64(-1)
	if length := dec.Length(); length >= 0 {
		frames = length / mp3FrameBytes
	}

	return &mp3Stream{rs: rs, dec: dec, frames: frames}, nil
}

func (s *mp3Stream) Format() audio.Format {
	return audio.Format{SampleRate: s.dec.SampleRate(), Channels: 2, BitDepth: 16}
}

func (s *mp3Stream) Frames() int64 { return s.frames }
func (s *mp3Stream) Close() error  { return s.rs.Close() }

func (s *mp3Stream) ReadFrames(dst []float32) (int, error) {
	want := len(dst) / 2
	if want == 0 {
		return 0, nil
	}

	size := want * mp3FrameBytes
	if cap(s.raw) < size {
		s.raw = make([]byte, size)
	}
	s.raw = s.raw[:size]

	n, err := io.ReadAtLeast(s.dec, s.raw, mp3FrameBytes)
	frames := n / mp3FrameBytes
	if frames == 0 {
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("mp3 read failed: %w", err)
	}

	for i := 0; i < frames*2; i++ {
		v := int16(binary.LittleEndian.Uint16(s.raw[i*2:]))
		dst[i] = audio.NormalizeInt16(v)
	}

	s.pos += int64(frames)
	if n%mp3FrameBytes != 0 {
		if err := s.SeekFrame(s.pos); err != nil {
			return frames, err
		}
	}
	return frames, nil
}

func (s *mp3Stream) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if s.frames >= 0 && frame > s.frames {
		frame = s.frames
	}
	if _, err := s.dec.Seek(frame*mp3FrameBytes, io.SeekStart); err != nil {
		return fmt.Errorf("mp3 seek failed: %w", err)
	}
	s.pos = frame
	return nil
}
