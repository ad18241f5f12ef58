// Package asyncserial bridges blocking serial-port I/O onto Go's cooperative
// scheduler, so application goroutines can read and write a serial device
// without ever parking inside a blocking device call.
//
// Every blocking transport call (open, read, write, close) runs on a small
// fixed pool of worker goroutines dedicated to device I/O. Callers suspend on
// context-aware methods and resume when the worker delivers the result over a
// completion channel.
//
// Features:
//   - Context-aware Open/Read/Write that never block the caller on device I/O
//   - One serialized lane per direction: at most one read and one write in
//     flight per session, concurrent writes queue FIFO
//   - Idempotent Close that is safe to race from many goroutines
//   - Portable transport via go.bug.st/serial, plus a raw termios transport
//     on Linux with flow control and cancellable reads
//   - Exported MockTransport for testing protocol layers without hardware
//   - PTY-based tests for reliability
//
// Cancelling a suspended Read or Write detaches the caller only: the blocking
// device call keeps running on its worker until it settles on its own (for a
// read, until the port's internal read timeout elapses) or until Close forces
// it back. This is a platform limitation, not a bug.
//
// Example usage:
//
//	cfg := asyncserial.Config{
//	    Device:   "/dev/ttyUSB0",
//	    BaudRate: 115200,
//	}
//	ctx := context.Background()
//	err := asyncserial.WithSession(ctx, cfg, func(ctx context.Context, b *asyncserial.Bridge) error {
//	    if err := b.WriteLine(ctx, "AT"); err != nil {
//	        return err
//	    }
//	    rctx, cancel := context.WithTimeout(ctx, time.Second)
//	    defer cancel()
//	    line, err := b.ReadLine(rctx)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println("received:", line)
//	    return nil
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
package asyncserial
