//go:build linux
// +build linux

package asyncserial

import (
	"context"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func openPtyBridge(t *testing.T) (*Bridge, *ptyPeer) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	cfg := Config{
		Device:      slave.Name(),
		BaudRate:    115200,
		Delimiter:   "\n",
		ReadTimeout: 100 * time.Millisecond,
	}
	b, err := Open(context.Background(), cfg, WithOpener(OpenTermios))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return b, &ptyPeer{master: master}
}

type ptyPeer struct {
	master interface {
		Read(p []byte) (int, error)
		Write(p []byte) (int, error)
	}
}

func (p *ptyPeer) write(t *testing.T, s string) {
	t.Helper()
	_, err := p.master.Write([]byte(s))
	require.NoError(t, err)
}

func (p *ptyPeer) read(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 128)
	n, err := p.master.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestTermPort_ChatMasterSlave(t *testing.T) {
	b, peer := openPtyBridge(t)
	ctx := context.Background()

	// 1. Master writes to the slave, the bridge should receive
	fromMaster := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		line, err := b.ReadLine(ctx)
		if err != nil {
			errc <- err
			return
		}
		fromMaster <- line
	}()

	peer.write(t, "ping\n")
	select {
	case line := <-fromMaster:
		require.Equal(t, "ping", line)
	case err := <-errc:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bridge to receive from master")
	}

	// 2. The bridge writes, the master should receive
	fromSlave := make(chan string, 1)
	go func() { fromSlave <- peer.read(t) }()

	require.NoError(t, b.WriteLine(ctx, "pong"))
	select {
	case msg := <-fromSlave:
		require.Equal(t, "pong\n", msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for master to receive from bridge")
	}
}

func TestTermPort_WriteReportsFullCount(t *testing.T) {
	b, peer := openPtyBridge(t)

	n, err := b.Write(context.Background(), []byte("testline\r\n"))
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, "testline\r\n", peer.read(t))
}

func TestTermPort_QuietWindowReadsEmpty(t *testing.T) {
	b, _ := openPtyBridge(t)

	start := time.Now()
	data, err := b.Read(context.Background())
	require.NoError(t, err)
	require.Empty(t, data)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"an empty read should come from the timeout window, not an instant failure")
}

func TestTermPort_CloseForcesBackBlockedRead(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	cfg := Config{
		Device:      slave.Name(),
		Delimiter:   "\n",
		ReadTimeout: -1, // block until data or cancel
	}
	b, err := Open(context.Background(), cfg, WithOpener(OpenTermios))
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() {
		_, err := b.Read(context.Background())
		readErr <- err
	}()
	time.Sleep(50 * time.Millisecond) // let the read block inside poll

	require.NoError(t, b.Close())

	select {
	case err := <-readErr:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked read to exit after close")
	}
}

func TestTermPort_PeerDisconnectSurfacesReadError(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { slave.Close() })

	cfg := Config{
		Device:      slave.Name(),
		Delimiter:   "\n",
		ReadTimeout: time.Second,
	}
	b, err := Open(context.Background(), cfg, WithOpener(OpenTermios))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	// Simulate device disconnect by closing the master side.
	require.NoError(t, master.Close())

	deadline := time.After(2 * time.Second)
	for {
		data, err := b.Read(context.Background())
		if err != nil {
			var readErr *ReadError
			require.ErrorAs(t, err, &readErr)
			return
		}
		require.Empty(t, data)
		select {
		case <-deadline:
			t.Fatal("timeout waiting for error after device disconnect")
		default:
		}
	}
}

func TestTermPort_RejectsUnsupportedBaud(t *testing.T) {
	_, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { slave.Close() })

	_, err = Open(context.Background(),
		Config{Device: slave.Name(), BaudRate: 12345},
		WithOpener(OpenTermios),
	)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
}
