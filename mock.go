package asyncserial

import (
	"errors"
	"sync"
	"time"
)

// MockTransport is an in-memory Transport for exercising the bridge and for
// consumers testing protocol layers without hardware. Reads are scripted with
// QueueRead; writes are recorded in arrival order. It implements ReadCanceler
// like a cancelable real port.
//
// Behavior fields must be set before the transport is handed to a bridge.
type MockTransport struct {
	// ReadTimeout is the window a Read waits for scripted data before
	// returning empty, mirroring a real port's internal read timeout.
	ReadTimeout time.Duration
	// ReadDelay and WriteDelay stall the blocking call, simulating a slow
	// device.
	ReadDelay  time.Duration
	WriteDelay time.Duration
	// ReadErr makes every Read fail.
	ReadErr error
	// WriteErr makes every Write fail, reporting WriteN bytes written.
	WriteErr error
	WriteN   int
	// CloseErr makes Close fail. The transport still records the close.
	CloseErr error

	mu         sync.Mutex
	reads      chan []byte
	writes     [][]byte
	written    []byte
	closed     bool
	closeCalls int
	cancel     chan struct{}
	cancelOnce sync.Once
}

// NewMockTransport returns a mock with a short read timeout so tests that
// read from an empty script return promptly.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		ReadTimeout: 5 * time.Millisecond,
		reads:       make(chan []byte, 64),
		cancel:      make(chan struct{}),
	}
}

// Opener returns an Opener yielding this transport, for WithOpener.
func (m *MockTransport) Opener() Opener {
	return func(Config) (Transport, error) { return m, nil }
}

// QueueRead scripts the payload returned by a future Read call.
func (m *MockTransport) QueueRead(p []byte) {
	buf := make([]byte, len(p))
	copy(buf, p)
	m.reads <- buf
}

func (m *MockTransport) Read(p []byte) (int, error) {
	if m.ReadDelay > 0 {
		time.Sleep(m.ReadDelay)
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	select {
	case data := <-m.reads:
		return copy(p, data), nil
	case <-m.cancel:
		return 0, errReadCanceled
	case <-time.After(m.ReadTimeout):
		// Quiet window: empty read, not an error
		return 0, nil
	}
}

func (m *MockTransport) Write(p []byte) (int, error) {
	if m.WriteDelay > 0 {
		time.Sleep(m.WriteDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("mock transport: write on closed port")
	}
	if m.WriteErr != nil {
		return m.WriteN, m.WriteErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	m.writes = append(m.writes, buf)
	m.written = append(m.written, buf...)
	return len(p), nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.closed = true
	return m.CloseErr
}

// CancelRead unblocks a pending Read and makes subsequent Reads fail, as a
// cancelable real port would.
func (m *MockTransport) CancelRead() error {
	m.cancelOnce.Do(func() { close(m.cancel) })
	return nil
}

// Written returns every byte the bridge wrote, in arrival order.
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.written))
	copy(out, m.written)
	return out
}

// WriteCalls returns the individual write payloads in arrival order.
func (m *MockTransport) WriteCalls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		buf := make([]byte, len(w))
		copy(buf, w)
		out[i] = buf
	}
	return out
}

// Closed reports whether Close has been called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCount reports how many times Close was invoked on the handle.
func (m *MockTransport) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}
