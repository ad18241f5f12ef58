package asyncserial

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations attempted once the session has left the
// Open state. No transport call is made: the failure is immediate.
var ErrClosed = errors.New("asyncserial: port closed")

// ErrPoolClosed is returned by Pool.Submit after the pool has shut down.
var ErrPoolClosed = errors.New("asyncserial: pool closed")

// OpenError reports a failure to open the device: unavailable, permission
// denied, or invalid configuration. Fatal to the session; nothing is retried.
type OpenError struct {
	Device string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("asyncserial: open %s: %v", e.Device, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ReadError reports a transport-level read failure. Reads that merely time
// out are not errors; they return an empty buffer.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("asyncserial: read: %v", e.Err) }

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a transport-level write failure. A short write carries
// the count actually written alongside this error.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("asyncserial: write: %v", e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// CloseError reports a failure while closing the transport. The session still
// reaches the Closed state: close is best effort and never leaves the session
// stuck in Closing.
type CloseError struct {
	Err error
}

func (e *CloseError) Error() string { return fmt.Sprintf("asyncserial: close: %v", e.Err) }

func (e *CloseError) Unwrap() error { return e.Err }
