package asyncserial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithSession_ClosesOnSuccess(t *testing.T) {
	mock := NewMockTransport()
	ran := false

	err := WithSession(context.Background(), Config{Device: "LOOP0"},
		func(ctx context.Context, b *Bridge) error {
			ran = true
			_, err := b.Write(ctx, []byte("hello"))
			return err
		},
		WithOpener(mock.Opener()),
	)
	require.NoError(t, err)
	require.True(t, ran)
	require.True(t, mock.Closed())
}

func TestWithSession_ClosesOnError(t *testing.T) {
	mock := NewMockTransport()
	boom := errors.New("protocol failure")

	err := WithSession(context.Background(), Config{Device: "LOOP0"},
		func(context.Context, *Bridge) error { return boom },
		WithOpener(mock.Opener()),
	)
	require.ErrorIs(t, err, boom)
	require.True(t, mock.Closed())
}

func TestWithSession_CloseFailureSurfacedWhenFnSucceeds(t *testing.T) {
	mock := NewMockTransport()
	mock.CloseErr = errors.New("handle already invalid")

	err := WithSession(context.Background(), Config{Device: "LOOP0"},
		func(context.Context, *Bridge) error { return nil },
		WithOpener(mock.Opener()),
	)
	var closeErr *CloseError
	require.ErrorAs(t, err, &closeErr)
}

func TestWithSession_CloseFailureNeverMasksFnError(t *testing.T) {
	mock := NewMockTransport()
	mock.CloseErr = errors.New("handle already invalid")
	boom := errors.New("protocol failure")

	err := WithSession(context.Background(), Config{Device: "LOOP0"},
		func(context.Context, *Bridge) error { return boom },
		WithOpener(mock.Opener()),
	)
	require.ErrorIs(t, err, boom)
	require.True(t, mock.Closed())
}

func TestWithSession_ClosesOnPanic(t *testing.T) {
	mock := NewMockTransport()

	require.Panics(t, func() {
		_ = WithSession(context.Background(), Config{Device: "LOOP0"},
			func(context.Context, *Bridge) error { panic("caller bug") },
			WithOpener(mock.Opener()),
		)
	})
	require.True(t, mock.Closed(), "close must run on panic unwinding too")
}

func TestWithSession_OpenFailureSkipsFn(t *testing.T) {
	boom := errors.New("device unavailable")
	ran := false

	err := WithSession(context.Background(), Config{Device: "/dev/ttyUSB9"},
		func(context.Context, *Bridge) error { ran = true; return nil },
		WithOpener(func(Config) (Transport, error) { return nil, boom }),
	)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	require.False(t, ran)
}
