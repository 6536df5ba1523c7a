// ABOUTME: Sentinel errors for peak reduction and caching
// ABOUTME: Source read errors are wrapped and propagated unchanged
package peaks

import "errors"

var (
	ErrInvalidRange      = errors.New("invalid frame range")
	ErrInvalidResolution = errors.New("frames per peak must be a positive finite number")
)
