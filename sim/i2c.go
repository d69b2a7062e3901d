package sim

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/emblinux/buskit/buses"
)

// The simulated bus hosts exactly one peripheral: a TMP102-style temperature
// sensor at SensorAddr. Its 12-bit reading lives in bits [15:4] of a 16-bit
// register pair (0x00 high byte, 0x01 low byte), 0.0625 degC per LSB.
const (
	// SensorAddr is the only address that responds on the simulated bus.
	SensorAddr = 0x48

	// TempHighReg and TempLowReg hold the encoded reading.
	TempHighReg = 0x00
	TempLowReg  = 0x01

	// OverrideReg accepts a write that replaces the low 8 bits of the raw
	// reading, keeping the high nibble.
	OverrideReg = 0xF0

	// Sentinel bytes: the modeled device answers unknown registers with
	// UnknownRegByte; an unmodeled address fills register-read buffers with
	// UnmodeledAddrByte and raw-read buffers with UnmodeledRawByte.
	// Malformed requests surface as data rather than extra error detail,
	// the way real silicon behaves.
	UnknownRegByte    = 0xFF
	UnmodeledAddrByte = 0xEE
	UnmodeledRawByte  = 0xFF
)

// Raw sensor model: starts at 25.0 degC, steps +0.5 degC on every read-type
// access, and wraps back to the floor once past 30.0 degC. In raw 0.0625
// degC units: 400 start, +8 per step, ceiling 480.
const (
	rawFloor   = 400
	rawStep    = 8
	rawCeiling = 480
)

type i2cBus struct {
	name   string
	raw    uint16 // 12-bit raw reading; mutated only via bus operations
	closed bool
	logger golog.Logger
}

// NewI2C opens a simulated addressable bus. The sensor state is owned by the
// returned handle: two handles do not alias one sensor.
func NewI2C(cfg buses.I2CConfig, logger golog.Logger) (buses.I2C, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debugw("sim i2c bus open", "bus", cfg.BusName, "speed_hint_hz", cfg.BusSpeedHz)
	return &i2cBus{name: cfg.BusName, raw: rawFloor, logger: logger}, nil
}

func (b *i2cBus) checkAddr(addr byte) error {
	if b.closed {
		return errors.Wrap(buses.ErrInvalidArgument, "i2c bus closed")
	}
	if addr > buses.MaxAddr {
		return errors.Wrapf(buses.ErrInvalidArgument, "address 0x%02X above 7-bit range", addr)
	}
	return nil
}

// advance steps the drift model. Reading the sensor has a side effect, as
// with a real self-converting part.
func (b *i2cBus) advance() {
	b.raw += rawStep
	if b.raw > rawCeiling {
		b.raw = rawFloor
	}
}

// encoded returns the register pair: raw12 shifted left 4, high byte first.
func (b *i2cBus) encoded() [2]byte {
	v := b.raw << 4
	return [2]byte{byte(v >> 8), byte(v)}
}

func (b *i2cBus) Probe(ctx context.Context, addr byte) error {
	if err := b.checkAddr(addr); err != nil {
		return err
	}
	if addr != SensorAddr {
		return errors.Wrapf(buses.ErrNoDevice, "probe 0x%02X on %s", addr, b.name)
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
	if addr != SensorAddr {
		return errors.Wrapf(buses.ErrNoDevice, "write to 0x%02X on %s", addr, b.name)
	}
	if len(tx) >= 2 && tx[0] == OverrideReg {
		b.override(tx[1])
		return nil
	}
	b.logger.Debugw("sim i2c raw write ignored", "bus", b.name, "len", len(tx))
	return nil
}

func (b *i2cBus) override(lo byte) {
	b.raw = (b.raw & 0xF00) | uint16(lo)
	b.logger.Debugw("sim sensor override", "bus", b.name, "raw", b.raw)
}

func (b *i2cBus) Read(ctx context.Context, addr byte, count int) ([]byte, error) {
	if err := b.checkAddr(addr); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errors.Wrapf(buses.ErrInvalidArgument, "read count %d", count)
	}
	buf := make([]byte, count)
	if addr != SensorAddr {
		for i := range buf {
			buf[i] = UnmodeledRawByte
		}
		return buf, errors.Wrapf(buses.ErrNoDevice, "read from 0x%02X on %s", addr, b.name)
	}

	// A raw read with no register selector streams the reading, repeating
	// the two encoded bytes.
	b.advance()
	enc := b.encoded()
	for i := range buf {
		buf[i] = enc[i%2]
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
	if addr != SensorAddr {
		return errors.Wrapf(buses.ErrNoDevice, "write reg 0x%02X to 0x%02X on %s", reg, addr, b.name)
	}
	if reg == OverrideReg && len(data) >= 1 {
		b.override(data[0])
		return nil
	}
	b.logger.Debugw("sim i2c register write ignored", "bus", b.name, "reg", reg, "len", len(data))
	return nil
}

func (b *i2cBus) ReadReg8(ctx context.Context, addr, reg byte, count int) ([]byte, error) {
	if err := b.checkAddr(addr); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errors.Wrapf(buses.ErrInvalidArgument, "read count %d", count)
	}
	buf := make([]byte, count)
	if addr != SensorAddr {
		for i := range buf {
			buf[i] = UnmodeledAddrByte
		}
		return buf, errors.Wrapf(buses.ErrNoDevice, "read reg 0x%02X from 0x%02X on %s", reg, addr, b.name)
	}

	b.advance()
	enc := b.encoded()
	for i := range buf {
		switch int(reg) + i {
		case TempHighReg:
			buf[i] = enc[0]
		case TempLowReg:
			buf[i] = enc[1]
		default:
			buf[i] = UnknownRegByte
		}
	}
	return buf, nil
}

func (b *i2cBus) Close() error {
	b.closed = true
	return nil
}
