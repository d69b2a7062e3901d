package buses

import (
	"context"

	"github.com/pkg/errors"
)

// MaxAddr is the largest valid 7-bit device address.
const MaxAddr = 0x7F

// MaxRegTransfer is the ceiling on a register write: selector byte plus data
// must fit a 256-byte transaction buffer.
const MaxRegTransfer = 256

// I2CConfig describes an addressable bus channel.
type I2CConfig struct {
	// BusName is the device-file path on the real backend, e.g.
	// "/dev/i2c-1". The simulated backend accepts any non-empty name.
	BusName string
	// BusSpeedHz is a hint only; backends may ignore it.
	BusSpeedHz uint32
}

// Validate checks the config without touching hardware.
func (c *I2CConfig) Validate() error {
	if c.BusName == "" {
		return errors.Wrap(ErrInvalidArgument, "i2c config needs a bus name")
	}
	return nil
}

// I2C is a shared addressable bus. Every operation carries the 7-bit device
// address and re-asserts it on the channel; no "current device" persists
// between calls.
type I2C interface {
	// Probe reports whether a device responds at addr. Any response,
	// including a zero-length or one-byte read, counts as present. On the
	// real backend a NACK is indistinguishable from other I/O faults, so
	// absence is reported by convention rather than certainty.
	Probe(ctx context.Context, addr byte) error

	// Write sends tx to addr in one transaction. A short write is ErrIO.
	Write(ctx context.Context, addr byte, tx []byte) error

	// Read reads exactly count bytes from addr in one transaction, with no
	// register selector sent first.
	Read(ctx context.Context, addr byte, count int) ([]byte, error)

	// WriteReg8 writes [reg, data...] to addr as ONE transaction, not two.
	// ErrInvalidArgument if len(data)+1 exceeds MaxRegTransfer.
	WriteReg8(ctx context.Context, addr, reg byte, data []byte) error

	// ReadReg8 writes the one-byte register selector and then reads count
	// bytes, both under a single address assertion. Either sub-step failing
	// is ErrIO with no bytes returned.
	ReadReg8(ctx context.Context, addr, reg byte, count int) ([]byte, error)

	// Close releases the channel. Best-effort.
	Close() error
}

// ReadRegU8 reads a single 8-bit register.
func ReadRegU8(ctx context.Context, bus I2C, addr, reg byte) (byte, error) {
	buf, err := bus.ReadReg8(ctx, addr, reg, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteRegU8 writes a single 8-bit register.
func WriteRegU8(ctx context.Context, bus I2C, addr, reg, val byte) error {
	return bus.WriteReg8(ctx, addr, reg, []byte{val})
}

// An I2CRegister is a lightweight wrapper binding a bus, a device address,
// and one register.
type I2CRegister struct {
	Bus      I2C
	Addr     byte
	Register byte
}

// Read reads the register's current byte value.
func (r *I2CRegister) Read(ctx context.Context) (byte, error) {
	return ReadRegU8(ctx, r.Bus, r.Addr, r.Register)
}

// Write writes a byte to the register.
func (r *I2CRegister) Write(ctx context.Context, data byte) error {
	return WriteRegU8(ctx, r.Bus, r.Addr, r.Register, data)
}
