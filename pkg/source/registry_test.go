// ABOUTME: Tests for the source registry
// ABOUTME: Covers canonical paths, refcounting and change detection
package source

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingOpener(opens *atomic.Int32) Opener {
	return func(path string, rate int) (*Source, error) {
		opens.Add(1)
		return Open(path, rate)
	}
}

func TestRegistryCanonicalPaths(t *testing.T) {
	dir := t.TempDir()
	path := quadWAV(t, dir, 100, 44100)

	link := filepath.Join(dir, "alias.wav")
	if err := os.Symlink(path, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	var opens atomic.Int32
	reg := NewRegistry(RegistryConfig{SampleRate: 44100, Open: countingOpener(&opens)})
	defer reg.Close()

	spellings := []string{
		path,
		filepath.Join(dir, ".", "quad.wav"),
		filepath.Join(dir, "sub", "..", "quad.wav"),
		link,
	}

	var handles []*Handle
	for _, p := range spellings {
		h, err := reg.Acquire(p)
		if err != nil {
			t.Fatalf("Acquire(%s) failed: %v", p, err)
		}
		handles = append(handles, h)
	}

	if opens.Load() != 1 {
		t.Errorf("expected one open, got %d", opens.Load())
	}
	if stats := reg.Stats(); stats.Entries != 1 || stats.Handles != len(spellings) {
		t.Errorf("unexpected stats %+v", stats)
	}
	for _, h := range handles[1:] {
		if h.Path() != handles[0].Path() {
			t.Errorf("expected canonical path %s, got %s", handles[0].Path(), h.Path())
		}
	}

	for _, h := range handles {
		h.Release()
	}
	if stats := reg.Stats(); stats.Entries != 0 {
		t.Errorf("expected no entries after release, got %+v", stats)
	}
}

func TestRegistryRateMismatchLeavesNoEntry(t *testing.T) {
	path := quadWAV(t, t.TempDir(), 100, 48000)

	reg := NewRegistry(RegistryConfig{SampleRate: 44100})
	defer reg.Close()

	_, err := reg.Acquire(path)
	if !errors.Is(err, ErrSampleRateMismatch) {
		t.Fatalf("expected ErrSampleRateMismatch, got %v", err)
	}
	if stats := reg.Stats(); stats.Entries != 0 || stats.Handles != 0 {
		t.Errorf("expected empty registry, got %+v", stats)
	}
}

func TestRegistryNotFound(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	defer reg.Close()

	if _, err := reg.Acquire(filepath.Join(t.TempDir(), "nope.wav")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleRelease(t *testing.T) {
	path := quadWAV(t, t.TempDir(), 100, 44100)
	reg := NewRegistry(RegistryConfig{SampleRate: 44100})
	defer reg.Close()

	a, err := reg.Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Acquire(path)
	if err != nil {
		t.Fatal(err)
	}

	a.Release()
	a.Release()

	if _, err := a.ReadAt(0, 0, make([]float32, 4)); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
	if _, err := b.ReadAt(0, 0, make([]float32, 4)); err != nil {
		t.Errorf("expected live handle to keep reading, got %v", err)
	}
	if stats := reg.Stats(); stats.Handles != 1 {
		t.Errorf("expected 1 handle after double release, got %+v", stats)
	}
	b.Release()
}

func TestRegistryChangeDetection(t *testing.T) {
	dir := t.TempDir()
	path := quadWAV(t, dir, 100, 44100)

	var changed []string
	var mu sync.Mutex
	reg := NewRegistry(RegistryConfig{
		SampleRate: 44100,
		OnChange: func(p string) {
			mu.Lock()
			changed = append(changed, p)
			mu.Unlock()
		},
	})
	defer reg.Close()

	old, err := reg.Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if old.Frames() != 100 {
		t.Fatalf("expected 100 frames, got %d", old.Frames())
	}

	// rewrite with a different length and a later mtime
	quadWAV(t, dir, 200, 44100)
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	fresh, err := reg.Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Release()

	if fresh.Frames() != 200 {
		t.Errorf("expected fresh source with 200 frames, got %d", fresh.Frames())
	}
	mu.Lock()
	if len(changed) != 1 || changed[0] != fresh.Path() {
		t.Errorf("expected one change for %s, got %v", fresh.Path(), changed)
	}
	mu.Unlock()

	// the stale source stays usable until its last handle drops
	if _, err := old.ReadAt(0, 0, make([]float32, 4)); err != nil {
		t.Errorf("stale handle should still read, got %v", err)
	}
	old.Release()

	if stats := reg.Stats(); stats.Entries != 1 {
		t.Errorf("expected only the fresh entry, got %+v", stats)
	}
}

func TestRegistryConcurrentAcquire(t *testing.T) {
	path := quadWAV(t, t.TempDir(), 100, 44100)
	reg := NewRegistry(RegistryConfig{SampleRate: 44100})
	defer reg.Close()

	const n = 16
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := reg.Acquire(path)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if stats := reg.Stats(); stats.Entries != 1 || stats.Handles != n {
		t.Errorf("expected 1 entry with %d handles, got %+v", n, stats)
	}
	for _, h := range handles {
		if h != nil {
			h.Release()
		}
	}
}

func TestRegistryClosed(t *testing.T) {
	path := quadWAV(t, t.TempDir(), 10, 44100)
	reg := NewRegistry(RegistryConfig{SampleRate: 44100})

	h, err := reg.Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	reg.Close()

	if _, err := h.ReadAt(0, 0, make([]float32, 4)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after registry close, got %v", err)
	}
	h.Release()

	if _, err := reg.Acquire(path); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from closed registry, got %v", err)
	}
}

func TestHandleRetain(t *testing.T) {
	path := quadWAV(t, t.TempDir(), 100, 44100)
	reg := NewRegistry(RegistryConfig{SampleRate: 44100})
	defer reg.Close()

	h, err := reg.Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	kept, err := h.Retain()
	if err != nil {
		t.Fatalf("Retain failed: %v", err)
	}
	h.Release()

	if _, err := kept.ReadAt(0, 0, make([]float32, 4)); err != nil {
		t.Errorf("retained handle should outlive the original, got %v", err)
	}
	if _, err := h.Retain(); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased retaining a released handle, got %v", err)
	}

	kept.Release()
	if stats := reg.Stats(); stats.Entries != 0 {
		t.Errorf("expected source closed after last release, got %+v", stats)
	}
}
