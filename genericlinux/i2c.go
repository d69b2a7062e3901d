package genericlinux

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/emblinux/buskit/buses"
)

type i2cBus struct {
	bus    i2c.BusCloser
	name   string
	logger golog.Logger
}

// NewI2C opens the i2c-dev node named by the config. The speed field is a
// hint: it is applied best-effort and a refusal is only logged, matching the
// kernel backend's behavior of ignoring it.
func NewI2C(cfg buses.I2CConfig, logger golog.Logger) (buses.I2C, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrapf(buses.ErrBusUnavailable, "periph host init: %v", err)
	}
	bus, err := i2creg.Open(cfg.BusName)
	if err != nil {
		return nil, errors.Wrapf(buses.ErrBusUnavailable, "open i2c bus %q: %v", cfg.BusName, err)
	}
	if cfg.BusSpeedHz > 0 {
		if err := bus.SetSpeed(physic.Frequency(cfg.BusSpeedHz) * physic.Hertz); err != nil {
			logger.Debugw("i2c speed hint rejected", "bus", cfg.BusName, "hz", cfg.BusSpeedHz, "error", err)
		}
	}
	logger.Debugw("i2c bus open", "bus", cfg.BusName, "speed_hint_hz", cfg.BusSpeedHz)
	return &i2cBus{bus: bus, name: cfg.BusName, logger: logger}, nil
}

func (b *i2cBus) checkAddr(addr byte) error {
	if b.bus == nil {
		return errors.Wrap(buses.ErrInvalidArgument, "i2c bus closed")
	}
	if addr > buses.MaxAddr {
		return errors.Wrapf(buses.ErrInvalidArgument, "address 0x%02X above 7-bit range", addr)
	}
	return nil
}

// Probe attempts a one-byte read. The kernel reports a NACK as a generic I/O
// error, so a dead device and a broken wire look the same here; by convention
// any failure is treated as absence.
func (b *i2cBus) Probe(ctx context.Context, addr byte) error {
	if err := b.checkAddr(addr); err != nil {
		return err
	}
	var dummy [1]byte
	if err := b.bus.Tx(uint16(addr), nil, dummy[:]); err != nil {
		return errors.Wrapf(buses.ErrNoDevice, "probe 0x%02X on %s: %v", addr, b.name, err)
	}
	return nil
}

func (b *i2cBus) Write(ctx context.Context, addr byte, tx []byte) error {
	if err := b.checkAddr(addr); err != nil {
		return err
	}
	if tx == nil {
		return errors.Wrap(buses.ErrInvalidArgument, "nil tx buffer")
	}
	if err := b.bus.Tx(uint16(addr), tx, nil); err != nil {
		return errors.Wrapf(buses.ErrIO, "write %d bytes to 0x%02X on %s: %v", len(tx), addr, b.name, err)
	}
	return nil
}

func (b *i2cBus) Read(ctx context.Context, addr byte, count int) ([]byte, error) {
	if err := b.checkAddr(addr); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errors.Wrapf(buses.ErrInvalidArgument, "read count %d", count)
	}
	buf := make([]byte, count)
	if err := b.bus.Tx(uint16(addr), nil, buf); err != nil {
		return nil, errors.Wrapf(buses.ErrIO, "read %d bytes from 0x%02X on %s: %v", count, addr, b.name, err)
	}
	return buf, nil
}

func (b *i2cBus) WriteReg8(ctx context.Context, addr, reg byte, data []byte) error {
	if err := b.checkAddr(addr); err != nil {
		return err
	}
	if len(data)+1 > buses.MaxRegTransfer {
		return errors.Wrapf(buses.ErrInvalidArgument, "register write of %d bytes exceeds %d-byte transaction",
			len(data)+1, buses.MaxRegTransfer)
	}
	// One transaction: [reg][data...], never a selector write followed by a
	// second start.
	raw := make([]byte, 0, len(data)+1)
	raw = append(raw, reg)
	raw = append(raw, data...)
	if err := b.bus.Tx(uint16(addr), raw, nil); err != nil {
		return errors.Wrapf(buses.ErrIO, "write reg 0x%02X (%d bytes) to 0x%02X on %s: %v",
			reg, len(data), addr, b.name, err)
	}
	return nil
}

func (b *i2cBus) ReadReg8(ctx context.Context, addr, reg byte, count int) ([]byte, error) {
	if err := b.checkAddr(addr); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errors.Wrapf(buses.ErrInvalidArgument, "read count %d", count)
	}
	// Selector write then read, under one address assertion.
	buf := make([]byte, count)
	if err := b.bus.Tx(uint16(addr), []byte{reg}, buf); err != nil {
		return nil, errors.Wrapf(buses.ErrIO, "read reg 0x%02X (%d bytes) from 0x%02X on %s: %v",
			reg, count, addr, b.name, err)
	}
	return buf, nil
}

func (b *i2cBus) Close() error {
	if b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	return err
}
