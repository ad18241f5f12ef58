package asyncserial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockTransport_ScriptedReads(t *testing.T) {
	mock := NewMockTransport()
	mock.QueueRead([]byte("first"))
	mock.QueueRead([]byte("second"))

	buf := make([]byte, 16)
	n, err := mock.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "first", string(buf[:n]))

	n, err = mock.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "second", string(buf[:n]))

	// Script exhausted: the quiet window elapses into an empty read.
	n, err = mock.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMockTransport_CancelUnblocksRead(t *testing.T) {
	mock := NewMockTransport()
	mock.ReadTimeout = 10 * time.Second

	done := make(chan error, 1)
	go func() {
		_, err := mock.Read(make([]byte, 1))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, mock.CancelRead())
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for canceled read")
	}
}

func TestMockTransport_RecordsWrites(t *testing.T) {
	mock := NewMockTransport()

	n, err := mock.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	_, err = mock.Write([]byte("def"))
	require.NoError(t, err)

	require.Equal(t, [][]byte{[]byte("abc"), []byte("def")}, mock.WriteCalls())
	require.Equal(t, []byte("abcdef"), mock.Written())

	require.NoError(t, mock.Close())
	require.True(t, mock.Closed())
	require.Equal(t, 1, mock.CloseCount())

	_, err = mock.Write([]byte("late"))
	require.Error(t, err, "writes after close must fail")
}
