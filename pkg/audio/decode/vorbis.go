// ABOUTME: Ogg Vorbis stream backed by jfreymuth/oggvorbis
// ABOUTME: Decodes straight to float32 so no normalization is needed
package decode

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/Sendspin/peakd/pkg/audio"
)

// Vorbis decodes Ogg Vorbis files
type Vorbis struct{}

type vorbisStream struct {
	rs     io.ReadSeekCloser
	r      *oggvorbis.Reader
	format audio.Format
}

// Decode reads the Vorbis identification headers
func (Vorbis) Decode(rs io.ReadSeekCloser) (Stream, error) {
	r, err := oggvorbis.NewReader(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if r.Channels() == 0 {
		return nil, fmt.Errorf("%w: vorbis stream has no channels", ErrInvalidData)
	}

	return &vorbisStream{
		rs: rs,
		r:  r,
		format: audio.Format{
			SampleRate: r.SampleRate(),
			Channels:   r.Channels(),
			BitDepth:   32,
		},
	}, nil
}

func (s *vorbisStream) Format() audio.Format { return s.format }
func (s *vorbisStream) Frames() int64        { return s.r.Length() }
func (s *vorbisStream) Close() error         { return s.rs.Close() }

func (s *vorbisStream) ReadFrames(dst []float32) (int, error) {
	ch := s.format.Channels
	if len(dst) < ch {
		return 0, nil
	}

	n, err := s.r.Read(dst[:len(dst)/ch*ch])
	frames := n / ch
	if frames > 0 {
		return frames, nil
	}
	if err == nil || err == io.EOF {
		return 0, io.EOF
	}
	return 0, fmt.Errorf("vorbis read failed: %w", err)
}

func (s *vorbisStream) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if length := s.r.Length(); frame > length {
		frame = length
	}
	if err := s.r.SetPosition(frame); err != nil {
		return fmt.Errorf("vorbis seek failed: %w", err)
	}
	return nil
}
