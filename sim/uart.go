package sim

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/emblinux/buskit/buses"
)

// UART is a loopback serial channel: the transmit line is wired to the
// receive line, so anything written comes back on the next reads. Extra
// inbound traffic can be scripted with Feed.
type UART struct {
	name    string
	pending []byte
	closed  bool
	logger  golog.Logger
}

// NewUART opens a loopback channel. The concrete type is returned so callers
// can reach Feed; it satisfies buses.UART.
func NewUART(cfg buses.UARTConfig, logger golog.Logger) (*UART, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debugw("sim uart open", "dev", cfg.DevName, "baud", cfg.BaudRate)
	return &UART{name: cfg.DevName, logger: logger}, nil
}

func (u *UART) Write(ctx context.Context, tx []byte) (int, error) {
	if u.closed {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "uart closed")
	}
	if tx == nil {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "nil tx buffer")
	}
	u.pending = append(u.pending, tx...)
	return len(tx), nil
}

func (u *UART) Read(ctx context.Context, rx []byte) (int, error) {
	if u.closed {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "uart closed")
	}
	if len(rx) == 0 {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "empty rx buffer")
	}
	// An empty queue reads as a timeout, matching the real backend.
	n := copy(rx, u.pending)
	u.pending = u.pending[n:]
	return n, nil
}

func (u *UART) Close() error {
	u.closed = true
	u.pending = nil
	return nil
}

// Feed queues bytes as if a remote peer had transmitted them.
func (u *UART) Feed(data []byte) {
	u.pending = append(u.pending, data...)
}
