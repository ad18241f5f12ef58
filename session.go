package asyncserial

import "context"

// WithSession opens a bridge around fn and closes it on every return path,
// including a panic unwinding out of fn.
//
// A close failure never masks fn's error: when both fail, fn's error is
// returned and the close error is logged as a secondary error. When fn
// succeeds, a close failure is returned.
func WithSession(ctx context.Context, cfg Config, fn func(context.Context, *Bridge) error, opts ...Option) (err error) {
	b, err := Open(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		cerr := b.Close()
		if cerr == nil {
			return
		}
		if err == nil {
			err = cerr
			return
		}
		b.log.WithError(cerr).Warn("close failed after session error")
	}()
	return fn(ctx, b)
}
