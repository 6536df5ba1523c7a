// ABOUTME: Sentinel errors for the decode package
// ABOUTME: Callers match them with errors.Is
package decode

import "errors"

var (
	ErrUnknownExtension    = errors.New("no decoder registered for file extension")
	ErrInvalidData         = errors.New("invalid audio data")
	ErrUnsupportedEncoding = errors.New("unsupported sample encoding")
)
