// Package expander drives an MCP23008-style I2C I/O expander through the
// buses.I2C contract only; it never knows whether the bus underneath is real
// or simulated. Bits 0-1 are wired as inputs (buttons), bits 2-7 as outputs
// (LEDs).
package expander

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/emblinux/buskit/buses"
)

// DefaultAddr is the expander's address with all hardware address pins low.
const DefaultAddr = 0x20

// Register map (simplified MCP23008).
const (
	regIODir = 0x00 // direction: 1=input, 0=output
	regGPIO  = 0x09 // read side: current pin levels
	regOLat  = 0x0A // write side: output latch
)

const (
	inputMask  = 0x03 // bits 0-1
	outputMask = 0xFC // bits 2-7
)

// Expander is a register-mapped peripheral driver over one bus address.
type Expander struct {
	bus    buses.I2C
	addr   byte
	logger golog.Logger
}

// New binds a driver to an opened addressable bus. The bus handle stays
// owned by the caller.
func New(bus buses.I2C, addr byte, logger golog.Logger) (*Expander, error) {
	if bus == nil {
		return nil, errors.Wrap(buses.ErrInvalidArgument, "expander needs an open bus")
	}
	if addr > buses.MaxAddr {
		return nil, errors.Wrapf(buses.ErrInvalidArgument, "address 0x%02X above 7-bit range", addr)
	}
	return &Expander{bus: bus, addr: addr, logger: logger}, nil
}

// Init configures the direction register (bits 0-1 input, bits 2-7 output)
// and then clears the output latch. If the direction write fails the latch
// write is not attempted; the first failing step's status is returned.
func (e *Expander) Init(ctx context.Context) error {
	if err := e.bus.WriteReg8(ctx, e.addr, regIODir, []byte{inputMask}); err != nil {
		return err
	}
	err := e.bus.WriteReg8(ctx, e.addr, regOLat, []byte{0x00})
	e.logger.Debugw("expander init", "addr", e.addr, "iodir", inputMask, "error", err)
	return err
}

// ReadInputs reads the combined pin-level register in one register read.
// Callers interested in the buttons use bits 0-1; bits 2-7 mirror whatever
// the latch drives.
func (e *Expander) ReadInputs(ctx context.Context) (byte, error) {
	return buses.ReadRegU8(ctx, e.bus, e.addr, regGPIO)
}

// WriteOutputs drives the output latch. Bits 0-1 are masked to zero first so
// a write can never disturb the input pins.
func (e *Expander) WriteOutputs(ctx context.Context, value byte) error {
	return buses.WriteRegU8(ctx, e.bus, e.addr, regOLat, value&outputMask)
}
