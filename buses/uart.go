package buses

import (
	"context"

	"github.com/pkg/errors"
)

// UARTParity selects the parity bit scheme.
type UARTParity uint8

// Parity schemes.
const (
	ParityNone UARTParity = iota
	ParityEven
	ParityOdd
)

// MinReadTimeoutMs is the smallest non-zero read timeout the real backend
// can honor; the termios deciseconds granularity underneath rounds anything
// finer away.
const MinReadTimeoutMs = 100

// UARTConfig describes an asynchronous serial channel. Line settings and the
// read timeout are fixed at open time; reconfiguring means reopening.
type UARTConfig struct {
	// DevName is the device-file path on the real backend, e.g.
	// "/dev/ttyUSB0".
	DevName string
	// BaudRate defaults to 115200 when zero.
	BaudRate uint32
	// DataBits is 5..8, defaulting to 8 when zero.
	DataBits uint8
	// StopBits is 1 or 2, defaulting to 1 when zero.
	StopBits uint8
	Parity   UARTParity
	// RTSCTSFlow enables hardware flow control where the port supports it.
	RTSCTSFlow bool
	// ReadTimeoutMs bounds how long a Read waits for the first byte.
	// Zero defaults to MinReadTimeoutMs; non-zero values below the floor
	// are rejected.
	ReadTimeoutMs uint32
}

// Validate checks the config without touching hardware.
func (c *UARTConfig) Validate() error {
	if c.DevName == "" {
		return errors.Wrap(ErrInvalidArgument, "uart config needs a device name")
	}
	if c.DataBits != 0 && (c.DataBits < 5 || c.DataBits > 8) {
		return errors.Wrapf(ErrInvalidArgument, "data bits %d outside 5..8", c.DataBits)
	}
	if c.StopBits > 2 {
		return errors.Wrapf(ErrInvalidArgument, "stop bits %d outside 1..2", c.StopBits)
	}
	if c.Parity > ParityOdd {
		return errors.Wrapf(ErrInvalidArgument, "parity mode %d unknown", c.Parity)
	}
	if c.ReadTimeoutMs != 0 && c.ReadTimeoutMs < MinReadTimeoutMs {
		return errors.Wrapf(ErrInvalidArgument, "read timeout %dms below the %dms floor",
			c.ReadTimeoutMs, MinReadTimeoutMs)
	}
	return nil
}

// UART is an asynchronous serial channel handle.
type UART interface {
	// Write sends all of tx, looping over short writes, and reports how
	// many bytes went out before any failure.
	Write(ctx context.Context, tx []byte) (int, error)

	// Read reads up to len(rx) bytes, waiting at most the configured read
	// timeout for data to arrive. A timeout is not an error: it returns
	// (0, nil).
	Read(ctx context.Context, rx []byte) (int, error)

	// Close releases the channel. Best-effort.
	Close() error
}

// WriteString sends a string over the channel.
func WriteString(ctx context.Context, u UART, s string) (int, error) {
	return u.Write(ctx, []byte(s))
}
