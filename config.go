package asyncserial

import (
	"fmt"
	"time"
)

// Parity configures the parity bit added to each frame.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// StopBits configures the number of stop bits per frame.
type StopBits int

const (
	StopBits1 StopBits = 1
	StopBits2 StopBits = 2
)

// Config holds the connection parameters for opening a serial device. Every
// recognized option is an explicit field mapped onto the transport's own
// configuration surface; invalid values are rejected at Open time rather than
// forwarded. The struct is copied at Open and never mutated afterwards.
type Config struct {
	// Device is the port path, e.g. "/dev/ttyUSB0".
	Device string

	// BaudRate in bits per second. Default 115200.
	BaudRate int

	// DataBits per frame, 5 to 8. Default 8.
	DataBits int

	// Parity bit mode. Default ParityNone.
	Parity Parity

	// StopBits per frame. Default StopBits1.
	StopBits StopBits

	// ReadTimeout bounds each blocking read inside the transport. A read
	// that sees no data within the window returns empty, not an error.
	// Default 500ms; negative means block until data arrives.
	ReadTimeout time.Duration

	// RTSCTS enables hardware flow control. Termios transport only.
	RTSCTS bool

	// XONXOFF enables software flow control. Termios transport only.
	XONXOFF bool

	// Delimiter terminates lines for ReadLine/WriteLine. Default "\r\n".
	Delimiter string

	// ReadBufferSize caps the bytes returned by a single Read. Default 4096.
	ReadBufferSize int
}

// normalize validates the configuration and applies defaults for unset values.
func (c Config) normalize() (Config, error) {
	cfg := c

	if cfg.Device == "" {
		return cfg, fmt.Errorf("no device given")
	}

	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.BaudRate < 0 {
		return cfg, fmt.Errorf("invalid baud rate %d", cfg.BaudRate)
	}

	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return cfg, fmt.Errorf("invalid data bits %d: must be between 5 and 8", cfg.DataBits)
	}

	if cfg.StopBits == 0 {
		cfg.StopBits = StopBits1
	}
	if cfg.StopBits != StopBits1 && cfg.StopBits != StopBits2 {
		return cfg, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", cfg.StopBits)
	}

	switch cfg.Parity {
	case ParityNone, ParityEven, ParityOdd:
	default:
		return cfg, fmt.Errorf("unsupported parity %d", cfg.Parity)
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}

	if cfg.Delimiter == "" {
		cfg.Delimiter = "\r\n"
	}

	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = 4096
	}
	if cfg.ReadBufferSize < 0 {
		return cfg, fmt.Errorf("invalid read buffer size %d", cfg.ReadBufferSize)
	}

	return cfg, nil
}
