package asyncserial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type sessionState int

const (
	stateUnopened sessionState = iota
	stateOpen
	stateClosing
	stateClosed
)

// Bridge owns one open serial transport and exposes it through context-aware
// methods. All transport interaction happens on pool workers; the bridge only
// moves arguments in and results out over completion channels.
//
// The transport is not assumed to be re-entrant, so each direction is a
// serialized lane: at most one read and one write are in flight at any time.
// Concurrent writers queue behind each other in submission order.
type Bridge struct {
	cfg      Config
	pool     *Pool
	ownsPool bool
	opener   Opener
	log      logrus.FieldLogger

	tr Transport

	stateMu sync.Mutex
	state   sessionState

	// Lane tokens, capacity 1. The holder of a token owns that direction
	// of the transport; in-flight calls release from the worker once they
	// settle. Blocked senders queue FIFO, which is what gives concurrent
	// writers their submission-order guarantee.
	readLane  chan struct{}
	writeLane chan struct{}

	closing   chan struct{} // closed when Close begins
	closed    chan struct{} // closed once the session reaches Closed
	closeOnce sync.Once
	closeErr  error

	lineMu sync.Mutex
	line   []byte // partial line carried between ReadLine calls
}

// Option adjusts how Open constructs a Bridge.
type Option func(*Bridge)

// WithPool runs the bridge on a shared, caller-owned pool instead of a
// bridge-owned one. The bridge will not close it.
func WithPool(p *Pool) Option {
	return func(b *Bridge) {
		if p != nil {
			b.pool = p
			b.ownsPool = false
		}
	}
}

// WithOpener substitutes the transport opener. The default is OpenNative;
// tests use this to splice in a MockTransport.
func WithOpener(open Opener) Option {
	return func(b *Bridge) {
		if open != nil {
			b.opener = open
		}
	}
}

// WithLogger attaches a logger for lifecycle events and secondary errors.
// The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Open opens the device eagerly and returns an open Bridge, or an OpenError.
// The blocking open call itself runs on a pool worker: serial devices can
// stall on open, and that stall must not land on the caller.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Bridge, error) {
	norm, err := cfg.normalize()
	if err != nil {
		return nil, &OpenError{Device: cfg.Device, Err: err}
	}

	b := &Bridge{
		cfg:       norm,
		ownsPool:  true,
		opener:    OpenNative,
		log:       discardLogger(),
		state:     stateUnopened,
		readLane:  make(chan struct{}, 1),
		writeLane: make(chan struct{}, 1),
		closing:   make(chan struct{}),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.pool == nil {
		b.pool = NewPool(DefaultPoolWorkers)
		b.ownsPool = true
	}

	res, err := offload(b.pool, func() (Transport, error) {
		return b.opener(norm)
	})
	if err != nil {
		b.teardownPool()
		return nil, &OpenError{Device: norm.Device, Err: err}
	}

	tr, err := res.await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// The open keeps running on its worker. Whatever it
			// yields must still be released.
			go func() {
				<-res.done
				if res.val != nil {
					res.val.Close()
				}
				b.teardownPool()
			}()
			return nil, &OpenError{Device: norm.Device, Err: err}
		}
		b.teardownPool()
		return nil, &OpenError{Device: norm.Device, Err: err}
	}

	b.tr = tr
	b.stateMu.Lock()
	b.state = stateOpen
	b.stateMu.Unlock()
	b.log.WithField("device", norm.Device).Debug("session open")
	return b, nil
}

func (b *Bridge) teardownPool() {
	if b.ownsPool {
		b.pool.Close()
	}
}

// Config returns the normalized configuration the session was opened with.
func (b *Bridge) Config() Config { return b.cfg }

func (b *Bridge) isOpen() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state == stateOpen
}

// acquire takes a lane token, failing fast once the session is not Open.
// Blocked acquirers queue in FIFO order on the lane channel.
func (b *Bridge) acquire(ctx context.Context, lane chan struct{}) error {
	if !b.isOpen() {
		return ErrClosed
	}
	select {
	case lane <- struct{}{}:
		return nil
	case <-b.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) release(lane chan struct{}) { <-lane }

// Read suspends until the transport delivers at least one byte or its
// internal read timeout elapses, returning whatever arrived up to
// Config.ReadBufferSize. An empty slice with a nil error means the timeout
// window elapsed, not end of stream; callers wanting a hard deadline put one
// on ctx. The returned slice is a copy owned by the caller.
func (b *Bridge) Read(ctx context.Context) ([]byte, error) {
	if err := b.acquire(ctx, b.readLane); err != nil {
		return nil, err
	}
	// Close may have begun while we queued for the lane.
	if !b.isOpen() {
		b.release(b.readLane)
		return nil, ErrClosed
	}

	res, err := offload(b.pool, func() ([]byte, error) {
		defer b.release(b.readLane)
		buf := make([]byte, b.cfg.ReadBufferSize)
		n, rerr := b.tr.Read(buf)
		if rerr != nil {
			return nil, rerr
		}
		if n <= 0 {
			return nil, nil
		}
		// Copy off the worker's buffer before handoff.
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	})
	if err != nil {
		b.release(b.readLane)
		return nil, &ReadError{Err: err}
	}

	data, rerr := res.await(ctx)
	switch {
	case rerr == nil:
		return data, nil
	case errors.Is(rerr, context.Canceled), errors.Is(rerr, context.DeadlineExceeded):
		return nil, rerr
	case !b.isOpen():
		// The read was forced back by Close.
		return nil, ErrClosed
	default:
		return nil, &ReadError{Err: rerr}
	}
}

// Write submits p for a blocking write on a pool worker and suspends until it
// settles, returning the count written. Bytes reach the transport in
// submission order: concurrent writers queue FIFO behind the in-flight write.
// A short write reports the actual count alongside the error.
func (b *Bridge) Write(ctx context.Context, p []byte) (int, error) {
	if err := b.acquire(ctx, b.writeLane); err != nil {
		return 0, err
	}
	if !b.isOpen() {
		b.release(b.writeLane)
		return 0, ErrClosed
	}

	// The worker must not share the caller's slice.
	buf := make([]byte, len(p))
	copy(buf, p)

	res, err := offload(b.pool, func() (int, error) {
		defer b.release(b.writeLane)
		return b.tr.Write(buf)
	})
	if err != nil {
		b.release(b.writeLane)
		return 0, &WriteError{Err: err}
	}

	n, werr := res.await(ctx)
	switch {
	case werr == nil:
		return n, nil
	case errors.Is(werr, context.Canceled), errors.Is(werr, context.DeadlineExceeded):
		return 0, werr
	case !b.isOpen():
		return n, ErrClosed
	default:
		return n, &WriteError{Err: werr}
	}
}

// ReadLine assembles bytes from Read until the configured delimiter arrives
// and returns the line without it. Partial input is carried over to the next
// call. It blocks until a full line arrives; bound it with ctx.
func (b *Bridge) ReadLine(ctx context.Context) (string, error) {
	delim := []byte(b.cfg.Delimiter)
	b.lineMu.Lock()
	defer b.lineMu.Unlock()
	for {
		if idx := bytes.Index(b.line, delim); idx >= 0 {
			line := string(b.line[:idx])
			b.line = b.line[idx+len(delim):]
			return line, nil
		}
		data, err := b.Read(ctx)
		if err != nil {
			return "", err
		}
		b.line = append(b.line, data...)
	}
}

// WriteLine writes the line followed by the configured delimiter.
func (b *Bridge) WriteLine(ctx context.Context, line string) error {
	_, err := b.Write(ctx, []byte(line+b.cfg.Delimiter))
	return err
}

// Close transitions the session to Closing, lets in-flight operations settle
// (forcing a blocked read back when the transport supports it), closes the
// transport on a pool worker, and transitions to Closed. Closed is terminal:
// there is no reopen.
//
// Close is idempotent and safe to race: the transport is closed at most once,
// and repeated or concurrent callers succeed. Only the call that performs the
// close reports a CloseError; the session reaches Closed either way.
func (b *Bridge) Close() error {
	initiator := false
	b.closeOnce.Do(func() {
		initiator = true
		b.closeErr = b.doClose()
	})
	if initiator {
		return b.closeErr
	}
	<-b.closed
	return nil
}

func (b *Bridge) doClose() error {
	defer close(b.closed)

	b.stateMu.Lock()
	b.state = stateClosing
	b.stateMu.Unlock()
	close(b.closing)

	// A blocked read sits inside the transport until its timeout window
	// elapses; force it back when the transport knows how.
	if c, ok := b.tr.(ReadCanceler); ok {
		if err := c.CancelRead(); err != nil {
			b.log.WithError(err).Warn("cancel pending read")
		}
	}

	// Exclusive access across both directions before touching the handle.
	// In-flight calls release their lane from the worker once they settle.
	b.writeLane <- struct{}{}
	b.readLane <- struct{}{}

	var closeErr error
	res, err := offload(b.pool, func() (struct{}, error) {
		return struct{}{}, b.tr.Close()
	})
	if err != nil {
		// Pool already gone (shared pool shut down first): close
		// inline rather than leak the handle.
		closeErr = b.tr.Close()
	} else {
		_, closeErr = res.await(context.Background())
	}

	// Best effort: the session reaches Closed even when the close failed.
	b.stateMu.Lock()
	b.state = stateClosed
	b.stateMu.Unlock()

	b.teardownPool()

	if closeErr != nil {
		return &CloseError{Err: closeErr}
	}
	b.log.WithField("device", b.cfg.Device).Debug("session closed")
	return nil
}
