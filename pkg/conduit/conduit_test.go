// ABOUTME: Tests for the lock-free sample conduit
// ABOUTME: Wraparound, back-pressure, under-run accounting and SPSC ordering
package conduit

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewRoundsCapacity(t *testing.T) {
	tests := []struct {
		frames, want int
	}{
		{0, 1},
		{1, 1},
		{3, 4},
		{1000, 1024},
		{4096, 4096},
	}

	for _, tt := range tests {
		c := New(tt.frames, 2)
		if c.Capacity() != tt.want {
			t.Errorf("New(%d): expected capacity %d, got %d", tt.frames, tt.want, c.Capacity())
		}
		if c.Free() != tt.want || c.Available() != 0 {
			t.Errorf("New(%d): expected empty conduit, free=%d available=%d", tt.frames, c.Free(), c.Available())
		}
	}
}

func TestWriteBackPressure(t *testing.T) {
	c := New(8, 2)
	samples := make([]float32, 20)

	if n := c.Write(samples, 10); n != 8 {
		t.Errorf("expected 8 frames accepted, got %d", n)
	}
	if n := c.Write(samples, 1); n != 0 {
		t.Errorf("expected a full conduit to accept nothing, got %d", n)
	}
	if c.Free() != 0 || c.Available() != 8 {
		t.Errorf("unexpected levels free=%d available=%d", c.Free(), c.Available())
	}

	// frames beyond the slice are never read
	if n := New(8, 2).Write(samples[:3], 5); n != 1 {
		t.Errorf("expected the write clamped to whole frames in the slice, got %d", n)
	}
}

func TestProcessWrapsAround(t *testing.T) {
	c := New(4, 2)
	out := make([]float32, 6)

	next := float32(0)
	frame := func() []float32 {
		next++
		return []float32{next, -next}
	}

	for round := 0; round < 5; round++ {
		in := append(append(frame(), frame()...), frame()...)
		if n := c.Write(in, 3); n != 3 {
			t.Fatalf("round %d: expected 3 frames written, got %d", round, n)
		}
		if n := c.Process(out, 3); n != 3 {
			t.Fatalf("round %d: expected 3 frames processed, got %d", round, n)
		}
		for i := 0; i < 6; i++ {
			if out[i] != in[i] {
				t.Fatalf("round %d: sample %d: expected %f, got %f", round, i, in[i], out[i])
			}
		}
	}
	if c.Underruns() != 0 {
		t.Errorf("expected no under-runs, got %d", c.Underruns())
	}
}

func TestProcessUnderrunEmitsSilence(t *testing.T) {
	c := New(8, 2)
	c.Write([]float32{0.5, 0.5, 0.25, 0.25}, 2)

	out := []float32{9, 9, 9, 9, 9, 9, 9, 9}
	if n := c.Process(out, 4); n != 2 {
		t.Fatalf("expected 2 real frames, got %d", n)
	}

	want := []float32{0.5, 0.5, 0.25, 0.25, 0, 0, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: expected %f, got %f", i, want[i], out[i])
		}
	}
	if c.Underruns() != 1 || c.SilentFrames() != 2 {
		t.Errorf("expected 1 under-run of 2 frames, got %d / %d", c.Underruns(), c.SilentFrames())
	}

	if n := c.Process(out, 4); n != 0 {
		t.Errorf("expected nothing from an empty conduit, got %d", n)
	}
	if c.Underruns() != 2 {
		t.Errorf("expected 2 under-runs, got %d", c.Underruns())
	}
}

// TestConcurrentProducerConsumer checks that frames arrive in order, that
// nothing is read before it was written, and that totals agree
func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 200000
	c := New(512, 2)

	var wg sync.WaitGroup
	var failed atomic.Bool
	wg.Add(2)

	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		buf := make([]float32, 256*2)
		sent := 0
		for sent < total && !failed.Load() {
			n := 1 + rng.Intn(256)
			if sent+n > total {
				n = total - sent
			}
			for i := 0; i < n; i++ {
				v := float32(sent + i + 1)
				buf[i*2], buf[i*2+1] = v, -v
			}
			sent += c.Write(buf, n)
		}
	}()

	var received int
	var bad string
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(2))
		out := make([]float32, 300*2)
		for received < total {
			want := 1 + rng.Intn(300)
			n := c.Process(out, want)
			for i := 0; i < n; i++ {
				v := float32(received + i + 1)
				if out[i*2] != v || out[i*2+1] != -v {
					bad = "frame out of order or corrupted"
					failed.Store(true)
					return
				}
			}
			for i := n * 2; i < want*2; i++ {
				if out[i] != 0 {
					bad = "under-run tail is not silent"
					failed.Store(true)
					return
				}
			}
			received += n
		}
	}()

	wg.Wait()
	if bad != "" {
		t.Fatal(bad)
	}
	if received != total {
		t.Errorf("expected %d frames, got %d", total, received)
	}
	if c.Available() != 0 {
		t.Errorf("expected an empty conduit, %d frames left", c.Available())
	}
}
