package genericlinux

import (
	"context"
	"io"

	"github.com/edaniels/golog"
	goserial "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"

	"github.com/emblinux/buskit/buses"
)

type uartPort struct {
	dev    io.ReadWriteCloser
	name   string
	logger golog.Logger
}

// NewUART opens the tty named by the config and applies the line settings as
// one logical operation. The read timeout is fixed at open time; the port is
// opened with a zero minimum read size so Read returns once the timeout
// lapses with nothing received.
func NewUART(cfg buses.UARTConfig, logger golog.Logger) (buses.UART, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.ReadTimeoutMs == 0 {
		cfg.ReadTimeoutMs = buses.MinReadTimeoutMs
	}

	dev, err := goserial.Open(goserial.OpenOptions{
		PortName:              cfg.DevName,
		BaudRate:              uint(cfg.BaudRate),
		DataBits:              uint(cfg.DataBits),
		StopBits:              uint(cfg.StopBits),
		ParityMode:            parityMode(cfg.Parity),
		RTSCTSFlowControl:     cfg.RTSCTSFlow,
		InterCharacterTimeout: uint(cfg.ReadTimeoutMs),
		MinimumReadSize:       0,
	})
	if err != nil {
		return nil, errors.Wrapf(buses.ErrConfigRejected, "open uart %q at %d baud: %v",
			cfg.DevName, cfg.BaudRate, err)
	}
	logger.Debugw("uart open",
		"dev", cfg.DevName, "baud", cfg.BaudRate, "bits", cfg.DataBits,
		"stop", cfg.StopBits, "parity", cfg.Parity, "timeout_ms", cfg.ReadTimeoutMs)
	return &uartPort{dev: dev, name: cfg.DevName, logger: logger}, nil
}

func parityMode(p buses.UARTParity) goserial.ParityMode {
	switch p {
	case buses.ParityEven:
		return goserial.PARITY_EVEN
	case buses.ParityOdd:
		return goserial.PARITY_ODD
	default:
		return goserial.PARITY_NONE
	}
}

func (u *uartPort) Write(ctx context.Context, tx []byte) (int, error) {
	if u.dev == nil {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "uart closed")
	}
	if tx == nil {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "nil tx buffer")
	}
	// Loop over short writes until the whole buffer is out.
	total := 0
	for total < len(tx) {
		n, err := u.dev.Write(tx[total:])
		total += n
		if err != nil {
			return total, errors.Wrapf(buses.ErrIO, "write %d of %d bytes to %s: %v",
				total, len(tx), u.name, err)
		}
	}
	return total, nil
}

func (u *uartPort) Read(ctx context.Context, rx []byte) (int, error) {
	if u.dev == nil {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "uart closed")
	}
	if len(rx) == 0 {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "empty rx buffer")
	}
	n, err := u.dev.Read(rx)
	if err != nil {
		// A zero-byte read from a timed-out port surfaces as EOF; the
		// channel is still open, so report it as a timeout.
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, errors.Wrapf(buses.ErrIO, "read from %s: %v", u.name, err)
	}
	return n, nil
}

func (u *uartPort) Close() error {
	if u.dev == nil {
		return nil
	}
	err := u.dev.Close()
	u.dev = nil
	return err
}
