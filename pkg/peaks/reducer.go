// ABOUTME: Reducer scans a frame range and emits one min/max peak per column
// ABOUTME: Column boundaries derive from the column index, never accumulated
package peaks

import (
	"context"
	"fmt"
	"math"

	"github.com/Sendspin/peakd/pkg/audio"
	"github.com/Sendspin/peakd/pkg/source"
)

const (
	// ChunkFrames is the default number of frames read from a source at once
	ChunkFrames = 65536

	// MaxPeaks bounds the columns of one request, matching the wire limit
	MaxPeaks = 1 << 26

	preallocPeaks = 1 << 16
)

// Sequence is an ordered run of peaks, one per output column
type Sequence []audio.Peak

// FrameReader is the read side of a source the reducer consumes
type FrameReader interface {
	Frames() int64
	Channels() int
	ReadAt(sel source.Channel, start int64, dst []float32) (int, error)
}

// Reducer computes peak sequences. The zero value is ready to use.
type Reducer struct {
	// ChunkFrames bounds the scratch buffer per reduction
	ChunkFrames int
}

// Count returns the number of columns a request produces before any
// truncation at end of file. The range must have passed bound.
func Count(start, end int64, fpp float64) int {
	if end <= start {
		return 0
	}
	return int(math.Ceil(float64(end-start) / fpp))
}

// columnBounds returns the frame range of column k, clipped to end
func columnBounds(start, end int64, fpp float64, k int) (int64, int64) {
	lo := math.Min(math.Round(float64(start)+float64(k)*fpp), float64(end))
	hi := math.Min(math.Round(float64(start)+float64(k+1)*fpp), float64(end))
	return int64(lo), int64(hi)
}

func validate(start, end int64, fpp float64) error {
	if start < 0 || end < start {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}
	if !(fpp > 0) || math.IsInf(fpp, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidResolution, fpp)
	}
	return nil
}

// bound clips end to just past the last column that can still hold a
// frame of a source with the given length (negative when unknown), then
// rejects requests that would produce more than MaxPeaks columns
func bound(start, end int64, fpp float64, frames int64) (int64, error) {
	if frames >= 0 {
		if limit := float64(frames) + math.Ceil(fpp) + 1; float64(end) > limit {
			end = max(int64(limit), start)
		}
	}
	if n := math.Ceil(float64(end-start) / fpp); n > MaxPeaks {
		return 0, fmt.Errorf("%w: %d frames at %g frames per peak exceeds %d peaks",
			ErrInvalidResolution, end-start, fpp, MaxPeaks)
	}
	return end, nil
}

// Reduce returns the peaks of channel over [start, end) at fpp frames per
// column. The sequence is truncated, not padded, when the source ends early.
func (r *Reducer) Reduce(ctx context.Context, src FrameReader, channel int, start, end int64, fpp float64) (Sequence, error) {
	if err := validate(start, end, fpp); err != nil {
		return nil, err
	}
	end, err := bound(start, end, fpp, src.Frames())
	if err != nil {
		return nil, err
	}

	count := Count(start, end, fpp)
	if count == 0 {
		return Sequence{}, nil
	}

	chunk := r.ChunkFrames
	if chunk <= 0 {
		chunk = ChunkFrames
	}
	if span := end - start; int64(chunk) > span {
		chunk = int(span)
	}

	sel := source.Channel(channel)
	buf := make([]float32, chunk)
	var bufStart, bufEnd int64 = start, start

	eof := src.Frames()
	if eof < 0 {
		eof = math.MaxInt64
	}

	seq := make(Sequence, 0, min(count, preallocPeaks))
	for k := 0; k < count; k++ {
		lo, hi := columnBounds(start, end, fpp, k)
		if lo == hi {
			if lo > eof {
				break
			}
			seq = append(seq, audio.Peak{})
			continue
		}
		if lo >= eof {
			break
		}

		var peak audio.Peak
		seen := false
		for f := lo; f < hi && f < eof; f++ {
			if f >= bufEnd {
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				want := int64(chunk)
				if rem := end - f; rem < want {
					want = rem
				}
				n, err := src.ReadAt(sel, f, buf[:want])
				if err != nil {
					return nil, fmt.Errorf("reduce frames %d-%d: %w", f, f+want, err)
				}
				bufStart, bufEnd = f, f+int64(n)
				if int64(n) < want {
					eof = bufEnd
				}
				if n == 0 {
					break
				}
			}

			v := buf[f-bufStart]
			if !seen {
				peak = audio.Peak{Min: v, Max: v}
				seen = true
				continue
			}
			if v < peak.Min {
				peak.Min = v
			}
			if v > peak.Max {
				peak.Max = v
			}
		}

		if !seen {
			break
		}
		seq = append(seq, peak)
		if hi > eof {
			break
		}
	}

	return seq, nil
}
