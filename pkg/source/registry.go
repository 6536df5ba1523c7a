// ABOUTME: Registry deduplicates open sources by canonical path
// ABOUTME: Reference-counted handles and size/mtime change detection
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Opener opens a source for a canonical path at the session rate
type Opener func(path string, sampleRate int) (*Source, error)

// RegistryConfig holds registry configuration
type RegistryConfig struct {
	// SampleRate is the session rate every source must match (0 accepts any)
	SampleRate int

	// Open creates sources; defaults to Open with the built-in decoders
	Open Opener

	// OnChange is called, outside the registry lock, with the canonical path
	// of a file whose size or modification time changed since it was last seen
	OnChange func(path string)
}

// Stamp identifies one version of a file on disk
type Stamp struct {
	Size    int64
	ModTime time.Time
}

// Equal reports whether two stamps describe the same file contents
func (s Stamp) Equal(o Stamp) bool {
	return s.Size == o.Size && s.ModTime.Equal(o.ModTime)
}

type entry struct {
	path  string
	src   *Source
	stamp Stamp
	refs  int
	stale bool
}

// Registry owns every open Source for the lifetime of a service
type Registry struct {
	config RegistryConfig

	entries map[string]*entry
	seen    map[string]Stamp
	closed  bool

	mu sync.Mutex
}

// RegistryStats is a snapshot of registry occupancy
type RegistryStats struct {
	Entries int
	Handles int
}

// NewRegistry creates an empty registry
func NewRegistry(config RegistryConfig) *Registry {
	if config.Open == nil {
		config.Open = func(path string, rate int) (*Source, error) {
			return Open(path, rate)
		}
	}

	return &Registry{
		config:  config,
		entries: make(map[string]*entry),
		seen:    make(map[string]Stamp),
	}
}

// Canonicalize expands ~, makes path absolute and clean, and resolves
// symlinks when the file exists
func Canonicalize(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// Acquire returns a handle to the live source for path, opening it on first
// use. Every successful Acquire must be paired with Release.
func (r *Registry) Acquire(path string) (*Handle, error) {
	key, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFormatUnsupported, key)
	}
	stamp := Stamp{Size: info.Size(), ModTime: info.ModTime()}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	changed := r.noteLocked(key, stamp)
	h := r.lookupLocked(key, stamp)
	r.mu.Unlock()

	if changed && r.config.OnChange != nil {
		r.config.OnChange(key)
	}
	if h != nil {
		return h, nil
	}

	// open outside the lock; a racing Acquire may register first
	src, err := r.config.Open(key, r.config.SampleRate)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		src.Close()
		return nil, ErrClosed
	}
	if h := r.lookupLocked(key, stamp); h != nil {
		src.Close()
		return h, nil
	}

	e := &entry{path: key, src: src, stamp: stamp, refs: 1}
	r.entries[key] = e
	return &Handle{reg: r, entry: e}, nil
}

// noteLocked records the stamp for key and reports whether it differs from
// the last stamp seen. Sources opened from the old version are detached.
func (r *Registry) noteLocked(key string, stamp Stamp) bool {
	prev, ok := r.seen[key]
	r.seen[key] = stamp
	if !ok || prev.Equal(stamp) {
		return false
	}

	if e, ok := r.entries[key]; ok && !e.stamp.Equal(stamp) {
		delete(r.entries, key)
		e.stale = true
		if e.refs == 0 {
			e.src.Close()
		}
	}
	return true
}

func (r *Registry) lookupLocked(key string, stamp Stamp) *Handle {
	e, ok := r.entries[key]
	if !ok || !e.stamp.Equal(stamp) {
		return nil
	}
	e.refs++
	return &Handle{reg: r, entry: e}
}

func (r *Registry) release(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return
	}

	if !e.stale {
		if cur, ok := r.entries[e.path]; ok && cur == e {
			delete(r.entries, e.path)
		}
	}
	e.src.Close()
}

// Stats returns the number of live entries and outstanding handles
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := RegistryStats{Entries: len(r.entries)}
	for _, e := range r.entries {
		stats.Handles += e.refs
	}
	return stats
}

// Close closes every source. Outstanding handles fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	for key, e := range r.entries {
		e.src.Close()
		delete(r.entries, key)
	}
	return nil
}

// Handle is one reference to a registered Source
type Handle struct {
	reg      *Registry
	entry    *entry
	released atomic.Bool
}

// Path returns the canonical path of the source
func (h *Handle) Path() string { return h.entry.path }

// Stamp returns the size and modification time the source was opened at
func (h *Handle) Stamp() Stamp { return h.entry.stamp }

func (h *Handle) Frames() int64   { return h.entry.src.Frames() }
func (h *Handle) Channels() int   { return h.entry.src.Channels() }
func (h *Handle) SampleRate() int { return h.entry.src.SampleRate() }

// ReadAt reads frames starting at start into dst
func (h *Handle) ReadAt(sel Channel, start int64, dst []float32) (int, error) {
	if h.released.Load() {
		return 0, ErrReleased
	}
	return h.entry.src.ReadAt(sel, start, dst)
}

// ReadRange returns the frames in [start, end); it panics if end <= start
func (h *Handle) ReadRange(sel Channel, start, end int64) ([]float32, error) {
	if h.released.Load() {
		return nil, ErrReleased
	}
	return h.entry.src.ReadRange(sel, start, end)
}

// Retain returns an additional reference to the same source, letting work
// started on behalf of this handle outlive its release
func (h *Handle) Retain() (*Handle, error) {
	if h.released.Load() {
		return nil, ErrReleased
	}

	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()

	h.entry.refs++
	return &Handle{reg: h.reg, entry: h.entry}, nil
}

// Release drops this reference. Releasing twice is a no-op.
func (h *Handle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.reg.release(h.entry)
}
