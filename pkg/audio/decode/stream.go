// ABOUTME: Stream and Decoder interfaces plus the extension-keyed registry
// ABOUTME: Open picks a decoder by file extension and hands it the file
package decode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Sendspin/peakd/pkg/audio"
)

// Stream is an open, seekable audio file
type Stream interface {
	// Format returns the decoded stream format
	Format() audio.Format

	// Frames returns the total number of frames, or -1 if unknown
	Frames() int64

	// ReadFrames fills dst with interleaved samples and returns the number
	// of whole frames read. Short reads are allowed but a non-empty dst never
	// yields (0, nil); (0, io.EOF) marks the end.
	ReadFrames(dst []float32) (int, error)

	// SeekFrame positions the stream so the next read starts at frame
	SeekFrame(frame int64) error

	// Close releases the stream and the underlying file
	Close() error
}

// Decoder constructs a Stream from an open file. The stream takes
// ownership of rs and closes it.
type Decoder interface {
	Decode(rs io.ReadSeekCloser) (Stream, error)
}

// Registry maps file extensions (".wav") to decoders
type Registry struct {
	codecs map[string]Decoder

	mtx sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
	}
}

// Default returns a registry with every built-in format registered
func Default() *Registry {
	r := NewRegistry()
	r.Register(".wav", WAV{})
	r.Register(".wave", WAV{})
	r.Register(".aif", AIFF{})
	r.Register(".aiff", AIFF{})
	r.Register(".flac", FLAC{})
	r.Register(".mp3", MP3{})
	r.Register(".ogg", Vorbis{})
	r.Register(".oga", Vorbis{})
	return r
}

// Register associates a decoder with an extension (case-insensitive)
func (r *Registry) Register(ext string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[normalizeExt(ext)] = d
}

// Get returns the decoder for an extension
func (r *Registry) Get(ext string) (Decoder, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	d, ok := r.codecs[normalizeExt(ext)]
	return d, ok
}

// Open opens path and decodes it with the decoder registered for its extension.
// File system errors are returned unwrapped so os.IsNotExist keeps working.
func (r *Registry) Open(path string) (Stream, error) {
	ext := filepath.Ext(path)
	d, ok := r.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stream, err := d.Decode(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return stream, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// discardFrames reads and drops n frames, used by formats without native seeking
func discardFrames(s Stream, n int64) error {
	if n <= 0 {
		return nil
	}
	ch := s.Format().Channels
	buf := make([]float32, 4096*ch)
	for n > 0 {
		want := int64(4096)
		if n < want {
			want = n
		}
		got, err := s.ReadFrames(buf[:want*int64(ch)])
		n -= int64(got)
		if err == io.EOF || (err == nil && got == 0) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
