// ABOUTME: Sentinel errors for sample sources and the source registry
// ABOUTME: Wrapped with context by callers and matched with errors.Is
package source

import "errors"

var (
	ErrNotFound           = errors.New("source not found")
	ErrFormatUnsupported  = errors.New("source format unsupported")
	ErrSampleRateMismatch = errors.New("source sample rate does not match session rate")
	ErrReleased           = errors.New("source handle released")
	ErrClosed             = errors.New("source closed")
	ErrInvalidChannel     = errors.New("channel out of range")
)
