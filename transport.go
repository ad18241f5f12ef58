package asyncserial

import "errors"

// Transport is the blocking serial device handle the bridge drives. It is
// treated as opaque and not assumed to be re-entrant: the bridge guarantees
// at most one Read and one Write are in flight at any time, and takes
// exclusive access across both directions before Close.
type Transport interface {
	// Read blocks until at least one byte is available or the transport's
	// internal read timeout elapses, in which case it returns (0, nil).
	Read(p []byte) (n int, err error)
	// Write blocks until the device accepts p, returning the count written.
	Write(p []byte) (n int, err error)
	// Close releases the device handle.
	Close() error
}

// ReadCanceler is implemented by transports that can force a blocked Read to
// return early. Close uses it so shutdown does not have to wait out a read
// timeout window.
type ReadCanceler interface {
	CancelRead() error
}

// Opener opens a Transport for the given configuration. Openers run on a pool
// worker, never on the caller's goroutine: serial devices can stall on open.
type Opener func(Config) (Transport, error)

// errReadCanceled is what a cancelled Read settles with inside its worker.
// Callers never see it: once shutdown has begun the bridge reports ErrClosed.
var errReadCanceled = errors.New("asyncserial: read canceled")
