// ABOUTME: Peak cache with a byte budget, LRU eviction and coalesced fills
// ABOUTME: Coarse zooms share power-of-two tier blocks; fine ones are cached exactly
package peaks

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Sendspin/peakd/pkg/audio"
	"github.com/Sendspin/peakd/pkg/source"
)

// DefaultCacheBytes is the memory budget used when none is configured
const DefaultCacheBytes = 64 << 20

// entryOverhead approximates the bookkeeping cost of one cache entry
const entryOverhead = 128

// Source is a readable audio file with a stable identity
type Source interface {
	FrameReader
	Path() string
	Stamp() source.Stamp
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	// MaxBytes bounds the memory held by cached peaks
	MaxBytes int64

	// Store persists tier blocks; nil keeps everything in memory
	Store *Store

	// Reducer computes peaks on a miss; nil uses a default Reducer
	Reducer *Reducer

	Debug bool
}

// CacheStats is a snapshot of cache counters
type CacheStats struct {
	Hits       uint64
	Misses     uint64
	Reductions uint64
	StoreHits  uint64
	Evictions  uint64
	Bytes      int64
	Entries    int
}

type cacheEntry struct {
	key  string
	path string
	seq  Sequence
	size int64
}

// Cache answers peak requests from memory, coalescing concurrent misses
type Cache struct {
	config  CacheConfig
	reducer *Reducer
	group   singleflight.Group

	items map[string]*list.Element
	lru   *list.List
	gens  map[string]uint64
	bytes int64

	hits       atomic.Uint64
	misses     atomic.Uint64
	reductions atomic.Uint64
	storeHits  atomic.Uint64
	evictions  atomic.Uint64

	mu sync.Mutex
}

// NewCache creates a cache
func NewCache(config CacheConfig) *Cache {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultCacheBytes
	}
	reducer := config.Reducer
	if reducer == nil {
		reducer = &Reducer{}
	}

	return &Cache{
		config:  config,
		reducer: reducer,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		gens:    make(map[string]uint64),
	}
}

// Fill returns the peaks of channel over [start, end) at fpp frames per
// column. Requests at or above MinTier are answered from the power-of-two
// tier below fpp, with column boundaries snapped to that tier. The
// returned sequence is a copy owned by the caller.
func (c *Cache) Fill(ctx context.Context, src Source, channel int, start, end int64, fpp float64) (Sequence, error) {
	if err := validate(start, end, fpp); err != nil {
		return nil, err
	}
	if channel < 0 || channel >= src.Channels() {
		return nil, fmt.Errorf("%w: %d of %d", source.ErrInvalidChannel, channel, src.Channels())
	}
	end, err := bound(start, end, fpp, src.Frames())
	if err != nil {
		return nil, err
	}
	if Count(start, end, fpp) == 0 {
		return Sequence{}, nil
	}

	if fpp >= MinTier {
		return c.recombine(ctx, src, channel, start, end, fpp, Tier(fpp))
	}

	seq, err := c.exact(ctx, src, channel, start, end, fpp)
	if err != nil {
		return nil, err
	}
	return append(Sequence(nil), seq...), nil
}

// NormalizationFactor returns the gain that brings the loudest peak of
// [start, end), across all channels, to full scale
func (c *Cache) NormalizationFactor(ctx context.Context, src Source, start, end int64) (float32, error) {
	if end <= start {
		return audio.Peak{}.NormalizationFactor(), nil
	}

	var peak audio.Peak
	seen := false
	for ch := 0; ch < src.Channels(); ch++ {
		seq, err := c.Fill(ctx, src, ch, start, end, float64(end-start))
		if err != nil {
			return 0, err
		}
		for _, p := range seq {
			if !seen {
				peak, seen = p, true
				continue
			}
			peak = peak.Merge(p)
		}
	}
	return peak.NormalizationFactor(), nil
}

// exact reduces a fine-grained request directly and caches it under its own key
func (c *Cache) exact(ctx context.Context, src Source, channel int, start, end int64, fpp float64) (Sequence, error) {
	key := "exact|" + src.Path() + "|" + strconv.Itoa(channel) + "|" +
		strconv.FormatFloat(fpp, 'g', -1, 64) + "|" +
		strconv.FormatInt(start, 10) + "|" + strconv.FormatInt(end, 10)

	return c.load(ctx, src, key, func(ctx context.Context, rs Source) (Sequence, error) {
		c.reductions.Add(1)
		return c.reducer.Reduce(ctx, rs, channel, start, end, fpp)
	})
}

// recombine merges the tier peaks each column covers. A column stops at
// the end of the source; the sequence stops at the first column that
// starts past it.
func (c *Cache) recombine(ctx context.Context, src Source, channel int, start, end int64, fpp float64, tier int64) (Sequence, error) {
	frames := src.Frames()
	last := int64(math.MaxInt64)
	if frames >= 0 {
		last = (frames + tier - 1) / tier
	}

	var block Sequence
	blockIdx := int64(-1)
	tierPeak := func(i int64) (audio.Peak, bool, error) {
		if b := i / BlockPeaks; b != blockIdx {
			var err error
			if block, err = c.block(ctx, src, channel, tier, b); err != nil {
				return audio.Peak{}, false, err
			}
			blockIdx = b
		}
		off := i % BlockPeaks
		if off >= int64(len(block)) {
			return audio.Peak{}, false, nil
		}
		return block[off], true, nil
	}

	count := Count(start, end, fpp)
	out := make(Sequence, 0, min(count, preallocPeaks))
	for k := 0; k < count; k++ {
		if frames >= 0 && int64(math.Round(float64(start)+float64(k)*fpp)) >= frames {
			break
		}

		i, j := tierSpan(start, end, fpp, tier, k, frames, last)
		var peak audio.Peak
		seen, eof := false, false
		for ; i < j; i++ {
			p, ok, err := tierPeak(i)
			if err != nil {
				return nil, err
			}
			if !ok {
				eof = true
				break
			}
			if !seen {
				peak, seen = p, true
			} else {
				peak = peak.Merge(p)
			}
		}

		if !seen {
			break
		}
		out = append(out, peak)
		if eof {
			break
		}
	}

	return out, nil
}

// block returns one block of tier peaks, from memory, the store, or a reduction
func (c *Cache) block(ctx context.Context, src Source, channel int, tier, b int64) (Sequence, error) {
	key := BlockKey{Path: src.Path(), Channel: channel, Tier: tier, Block: b}

	return c.load(ctx, src, key.String(), func(ctx context.Context, rs Source) (Sequence, error) {
		stamp := rs.Stamp()
		if c.config.Store != nil {
			seq, ok, err := c.config.Store.Load(ctx, key, stamp)
			if err != nil {
				log.Printf("peaks: store lookup failed, reducing instead: %v", err)
			} else if ok {
				c.storeHits.Add(1)
				return seq, nil
			}
		}

		c.reductions.Add(1)
		span := tier * BlockPeaks
		seq, err := c.reducer.Reduce(ctx, rs, channel, b*span, (b+1)*span, float64(tier))
		if err != nil {
			return nil, err
		}

		if c.config.Store != nil {
			if err := c.config.Store.Save(ctx, key, stamp, seq); err != nil {
				log.Printf("peaks: failed to persist %s: %v", key, err)
			}
		}
		return seq, nil
	})
}

type computeFunc func(ctx context.Context, src Source) (Sequence, error)

// load returns the cached sequence for key or computes it. Concurrent
// misses share one computation, which runs detached from the caller's
// cancellation so an abandoned request cannot fail the other waiters.
func (c *Cache) load(ctx context.Context, src Source, key string, compute computeFunc) (Sequence, error) {
	path := src.Path()

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.lru.MoveToFront(el)
		seq := el.Value.(*cacheEntry).seq
		c.mu.Unlock()
		c.hits.Add(1)
		return seq, nil
	}
	gen := c.gens[path]
	c.mu.Unlock()
	c.misses.Add(1)

	kept, release, err := retain(src)
	if err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	flight := key + "#" + strconv.FormatUint(gen, 10)
	results := c.group.DoChan(flight, func() (any, error) {
		return c.compute(detached, kept, path, key, gen, compute)
	})

	select {
	case res := <-results:
		release()
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Sequence), nil
	case <-ctx.Done():
		// keep our reference alive until a flight we may be leading finishes
		go func() {
			<-results
			release()
		}()
		return nil, ctx.Err()
	}
}

// compute runs inside a flight. A flight for the same key may have
// finished between the caller's lookup and joining the group, so the
// cache is checked again before reducing.
func (c *Cache) compute(ctx context.Context, src Source, path, key string, gen uint64, fn computeFunc) (Sequence, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		seq := el.Value.(*cacheEntry).seq
		c.mu.Unlock()
		return seq, nil
	}
	c.mu.Unlock()

	if c.config.Debug {
		log.Printf("peaks: reducing %s", key)
	}
	seq, err := fn(ctx, src)
	if err != nil {
		return nil, err
	}
	c.insert(path, key, gen, seq)
	return seq, nil
}

// retain takes an extra reference on registry handles for the lifetime of
// a shared computation
func retain(src Source) (Source, func(), error) {
	h, ok := src.(*source.Handle)
	if !ok {
		return src, func() {}, nil
	}
	kept, err := h.Retain()
	if err != nil {
		return nil, nil, err
	}
	return kept, kept.Release, nil
}

func (c *Cache) insert(path, key string, gen uint64, seq Sequence) {
	size := int64(len(seq)*audio.PeakSize+len(key)) + entryOverhead

	c.mu.Lock()
	defer c.mu.Unlock()

	// invalidated while the reduction was running
	if c.gens[path] != gen {
		return
	}
	if size > c.config.MaxBytes {
		return
	}
	if _, ok := c.items[key]; ok {
		return
	}

	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, path: path, seq: seq, size: size})
	c.bytes += size

	for c.bytes > c.config.MaxBytes {
		c.removeLocked(c.lru.Back())
		c.evictions.Add(1)
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := c.lru.Remove(el).(*cacheEntry)
	delete(c.items, e.key)
	c.bytes -= e.size
}

// Invalidate drops every cached and stored peak for path
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	c.gens[path]++
	dropped := 0
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*cacheEntry).path == path {
			c.removeLocked(el)
			dropped++
		}
		el = next
	}
	c.mu.Unlock()

	if c.config.Debug {
		log.Printf("peaks: invalidated %s (%d entries)", path, dropped)
	}

	if c.config.Store != nil {
		if err := c.config.Store.DeletePath(context.Background(), path); err != nil {
			log.Printf("peaks: %v", err)
		}
	}
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	bytes, entries := c.bytes, c.lru.Len()
	c.mu.Unlock()

	return CacheStats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Reductions: c.reductions.Load(),
		StoreHits:  c.storeHits.Load(),
		Evictions:  c.evictions.Load(),
		Bytes:      bytes,
		Entries:    entries,
	}
}
