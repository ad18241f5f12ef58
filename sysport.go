package asyncserial

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

// sysPort adapts a go.bug.st/serial port to the Transport contract.
type sysPort struct {
	port serial.Port
}

// OpenNative is the default Opener. It opens the device through
// go.bug.st/serial, which provides portable serial access without cgo. The
// configured read timeout maps onto the port's own timeout, so a quiet read
// window yields (0, nil) as the Transport contract requires.
//
// Flow control is not exposed by the portable backend; configurations asking
// for it are rejected rather than silently ignored. On Linux, OpenTermios
// supports both flow control modes.
func OpenNative(cfg Config) (Transport, error) {
	if cfg.RTSCTS || cfg.XONXOFF {
		return nil, errors.New("flow control is not supported by the native transport")
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch cfg.Parity {
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	if cfg.StopBits == StopBits2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, err
	}
	timeout := cfg.ReadTimeout
	if timeout < 0 {
		timeout = serial.NoTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &sysPort{port: port}, nil
}

func (s *sysPort) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *sysPort) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *sysPort) Close() error                { return s.port.Close() }
