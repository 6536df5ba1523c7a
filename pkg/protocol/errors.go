// ABOUTME: Protocol error taxonomy
// ABOUTME: Sentinels for transport failures plus the server's error replies
package protocol

import "errors"

var (
	ErrMalformed   = errors.New("malformed message")
	ErrShortRead   = errors.New("short read")
	ErrUnreachable = errors.New("server unreachable")
	ErrClosed      = errors.New("client closed")
)

// RemoteError is an "error: <reason>" reply from the server
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Reason
}
