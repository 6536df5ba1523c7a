// ABOUTME: WAV file stream backed by go-audio/wav
// ABOUTME: Seeks directly inside the PCM chunk using the frame size
package decode

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Sendspin/peakd/pkg/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAV decodes RIFF/WAVE files with integer PCM data
type WAV struct{}

type wavStream struct {
	rs         io.ReadSeekCloser
	dec        *wav.Decoder
	format     audio.Format
	frames     int64
	frameBytes int64
	dataStart  int64
	pos        int64
	buf        *goaudio.IntBuffer
}

// Decode parses the WAV headers and positions the stream at frame 0
func (WAV) Decode(rs io.ReadSeekCloser) (Stream, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrInvalidData)
	}

	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: WAV format tag %d", ErrUnsupportedEncoding, dec.WavAudioFormat)
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit WAV", ErrUnsupportedEncoding, dec.BitDepth)
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	dataStart, err := dec.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to locate PCM data: %w", err)
	}

	format := audio.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	frameBytes := int64(format.FrameBytes())

	return &wavStream{
		rs:         rs,
		dec:        dec,
		format:     format,
		frames:     int64(dec.PCMSize) / frameBytes,
		frameBytes: frameBytes,
		dataStart:  dataStart,
	}, nil
}

func (s *wavStream) Format() audio.Format { return s.format }
func (s *wavStream) Frames() int64        { return s.frames }
func (s *wavStream) Close() error         { return s.rs.Close() }

func (s *wavStream) ReadFrames(dst []float32) (int, error) {
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
	if err != nil {
		return 0, fmt.Errorf("wav read failed: %w", err)
	}

	frames := n / ch
	if frames == 0 {
		return 0, io.EOF
	}

	for i := 0; i < frames*ch; i++ {
		dst[i] = audio.NormalizeInt(s.buf.Data[i], s.format.BitDepth)
	}

	s.pos += int64(frames)
	if n != samples {
		// short reads may stop inside a frame; realign on the next boundary
		if err := s.SeekFrame(s.pos); err != nil {
			return frames, err
		}
	}

	return frames, nil
}

func (s *wavStream) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if frame > s.frames {
		frame = s.frames
	}

	offset := s.dataStart + frame*s.frameBytes
	if _, err := s.dec.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("wav seek failed: %w", err)
	}

	// the PCM chunk reader is a LimitReader over the file; rebuild it so the
	// byte budget matches the new position
	s.dec.PCMChunk.R = io.LimitReader(s.rs, (s.frames-frame)*s.frameBytes)
	s.pos = frame
	return nil
}
