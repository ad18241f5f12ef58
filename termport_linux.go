//go:build linux
// +build linux

package asyncserial

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// termPort is a raw termios transport. Compared to the portable go.bug.st
// path it supports hardware and software flow control, and it implements
// ReadCanceler through a self-pipe so Close never has to wait out a read
// timeout window.
type termPort struct {
	fd          int
	file        *os.File
	pipeR       int // self-pipe read end, polled next to the device fd
	pipeW       int // self-pipe write end, written by CancelRead
	readTimeout time.Duration
	canceled    atomic.Bool
	closeOnce   sync.Once
}

// OpenTermios opens the device with raw termios configuration. Linux only.
// Reads are paced by poll(2) with the configured read timeout, so a quiet
// window yields (0, nil) as the Transport contract requires.
func OpenTermios(cfg Config) (Transport, error) {
	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag |= unix.CREAD | unix.CLOCAL

	// Frame format
	t.Cflag &^= unix.CSIZE
	switch cfg.DataBits {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}
	switch cfg.Parity {
	case ParityEven:
		t.Cflag |= unix.PARENB
		t.Cflag &^= unix.PARODD
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	default:
		t.Cflag &^= unix.PARENB | unix.PARODD
	}
	if cfg.StopBits == StopBits2 {
		t.Cflag |= unix.CSTOPB
	} else {
		t.Cflag &^= unix.CSTOPB
	}

	// Flow control
	if cfg.RTSCTS {
		t.Cflag |= unix.CRTSCTS
	} else {
		t.Cflag &^= unix.CRTSCTS
	}
	if cfg.XONXOFF {
		t.Iflag |= unix.IXON | unix.IXOFF
	}

	baud, err := baudToUnix(cfg.BaudRate)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= baud

	// Reads are paced by poll below, not by VMIN/VTIME.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Back to blocking mode now that config is done
	syscall.SetNonblock(fd, false)

	// Self-pipe for cancelling a blocked read
	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &termPort{
		fd:          fd,
		file:        os.NewFile(uintptr(fd), cfg.Device),
		pipeR:       pipeFds[0],
		pipeW:       pipeFds[1],
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// Read waits for data or cancellation with poll, bounded by the configured
// read timeout. A quiet window returns (0, nil).
func (p *termPort) Read(buf []byte) (int, error) {
	if p.canceled.Load() {
		return 0, errReadCanceled
	}
	timeout := int(p.readTimeout / time.Millisecond)
	if p.readTimeout < 0 {
		timeout = -1 // block until data or cancel
	}
	for {
		pfd := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
			{Fd: int32(p.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			// Timeout window elapsed with no data
			return 0, nil
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			// Drain pipe
			var b [1]byte
			unix.Read(p.pipeR, b[:])
			return 0, errReadCanceled
		}
		// POLLHUP and POLLERR fall through: the read reports them.
		return p.file.Read(buf)
	}
}

func (p *termPort) Write(buf []byte) (int, error) {
	return p.file.Write(buf)
}

// CancelRead forces a blocked Read to return by writing to the self-pipe.
// Subsequent Reads fail the same way.
func (p *termPort) CancelRead() error {
	p.canceled.Store(true)
	_, err := unix.Write(p.pipeW, []byte{0})
	return err
}

// Close closes the device and the self-pipe. Safe to call more than once;
// subsequent calls are no-ops.
func (p *termPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.canceled.Store(true)
		// Wake any pending poll
		unix.Write(p.pipeW, []byte{0})
		err = p.file.Close()
		unix.Close(p.pipeR)
		unix.Close(p.pipeW)
	})
	return err
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, fmt.Errorf("unsupported baud rate %d", baud)
	}
}
