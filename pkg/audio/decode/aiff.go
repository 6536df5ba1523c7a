// ABOUTME: AIFF file stream backed by go-audio/aiff
// ABOUTME: Seeks by rewinding the decoder and discarding frames
package decode

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"

	"github.com/Sendspin/peakd/pkg/audio"
)

// AIFF decodes uncompressed AIFF files
type AIFF struct{}

type aiffStream struct {
	rs     io.ReadSeekCloser
	dec    *aiff.Decoder
	format audio.Format
	frames int64
	pos    int64
	buf    *goaudio.IntBuffer
}

// Decode parses the AIFF headers and positions the stream at frame 0
func (AIFF) Decode(rs io.ReadSeekCloser) (Stream, error) {
	dec, err := openAIFF(rs)
	if err != nil {
		return nil, err
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit AIFF", ErrUnsupportedEncoding, dec.BitDepth)
	}

	return &aiffStream{
		rs:  rs,
		dec: dec,
		format: audio.Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
			BitDepth:   int(dec.BitDepth),
		},
		frames: int64(dec.NumSampleFrames),
	}, nil
}

func openAIFF(rs io.ReadSeeker) (*aiff.Decoder, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind AIFF: %w", err)
	}

	dec := aiff.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not an AIFF file", ErrInvalidData)
	}
	dec.ReadInfo()
	if dec.Format() == nil || dec.NumChans == 0 {
		return nil, fmt.Errorf("%w: AIFF has no channel layout", ErrInvalidData)
	}
	return dec, nil
}

func (s *aiffStream) Format() audio.Format { return s.format }
func (s *aiffStream) Frames() int64        { return s.frames }
func (s *aiffStream) Close() error         { return s.rs.Close() }

func (s *aiffStream) ReadFrames(dst []float32) (int, error) {
	ch := s.format.Channels
	want := int64(len(dst) / ch)
	if remaining := s.frames - s.pos; want > remaining {
		want = remaining
	}
	if want <= 0 {
		return 0, io.EOF
	}

	samples := int(want) * ch
	if s.buf == nil || cap(s.buf.Data) < samples {
		s.buf = &goaudio.IntBuffer{
			Data:   make([]int, samples),
			Format: s.dec.Format(),
		}
	}
	s.buf.Data = s.buf.Data[:samples]

	n, err := s.dec.PCMBuffer(s.buf)
	frames := n / ch
	if frames == 0 {
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("aiff read failed: %w", err)
		}
		return 0, io.EOF
	}

	for i := 0; i < frames*ch; i++ {
		dst[i] = audio.NormalizeSigned(int32(s.buf.Data[i]), s.format.BitDepth)
	}
	s.pos += int64(frames)

	if n%ch != 0 {
		// realign; the decoder cannot be positioned mid-chunk
		if err := s.SeekFrame(s.pos); err != nil {
			return frames, err
		}
	}
	return frames, nil
}

func (s *aiffStream) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if frame > s.frames {
		frame = s.frames
	}

	dec, err := openAIFF(s.rs)
	if err != nil {
		return err
	}
	s.dec = dec
	s.pos = 0
	return discardFrames(s, frame)
}
