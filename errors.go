package pcmio

import (
	"errors"
)

// Error kinds returned by handle operations and backends. Wrapped errors
// carry additional detail; match with errors.Is.
var (
	// ErrInvalidArg reports a malformed argument or definition.
	ErrInvalidArg = errors.New("pcmio: invalid argument")

	// ErrNotFound reports an unknown identifier, type, module or symbol.
	ErrNotFound = errors.New("pcmio: not found")

	// ErrBadState reports an operation that is illegal in the current
	// lifecycle state of the stream.
	ErrBadState = errors.New("pcmio: bad state")

	// ErrXrun reports a broken stream position (underrun or overrun).
	ErrXrun = errors.New("pcmio: stream xrun")

	// ErrWouldBlock reports that a nonblocking transfer found no room
	// or no data.
	ErrWouldBlock = errors.New("pcmio: operation would block")

	// ErrInterrupted reports a wait cut short by a signal.
	ErrInterrupted = errors.New("pcmio: interrupted")

	// ErrUnsupported reports an operation the backend does not provide.
	ErrUnsupported = errors.New("pcmio: not supported")
)

var errShortChunk = errors.New("pcmio: backend moved fewer frames than confirmed")
