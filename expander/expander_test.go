package expander

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/emblinux/buskit/buses"
	"github.com/emblinux/buskit/sim"
)

type regWrite struct {
	reg  byte
	data []byte
}

// regBus is a register-map test double for buses.I2C: writes land in regs,
// reads come back from regs, and one register can be scripted to fail.
type regBus struct {
	regs    map[byte]byte
	writes  []regWrite
	failReg byte
	failErr error
}

func newRegBus() *regBus {
	return &regBus{regs: map[byte]byte{}, failReg: 0xFF}
}

func (b *regBus) Probe(ctx context.Context, addr byte) error { return nil }

func (b *regBus) Write(ctx context.Context, addr byte, tx []byte) error {
	return errors.Wrap(buses.ErrIO, "raw writes unused by the expander")
}

func (b *regBus) Read(ctx context.Context, addr byte, count int) ([]byte, error) {
	return nil, errors.Wrap(buses.ErrIO, "raw reads unused by the expander")
}

func (b *regBus) WriteReg8(ctx context.Context, addr, reg byte, data []byte) error {
	if reg == b.failReg {
		return b.failErr
	}
	b.writes = append(b.writes, regWrite{reg: reg, data: append([]byte(nil), data...)})
	if len(data) > 0 {
		b.regs[reg] = data[0]
	}
	return nil
}

func (b *regBus) ReadReg8(ctx context.Context, addr, reg byte, count int) ([]byte, error) {
	buf := make([]byte, count)
	for i := range buf {
		buf[i] = b.regs[reg+byte(i)]
	}
	return buf, nil
}

func (b *regBus) Close() error { return nil }

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("direction then latch clear, in order", func(t *testing.T) {
		bus := newRegBus()
		exp, err := New(bus, DefaultAddr, golog.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, exp.Init(ctx), test.ShouldBeNil)

		test.That(t, len(bus.writes), test.ShouldEqual, 2)
		test.That(t, bus.writes[0].reg, test.ShouldEqual, byte(regIODir))
		test.That(t, bus.writes[0].data[0], test.ShouldEqual, byte(0x03))
		test.That(t, bus.writes[1].reg, test.ShouldEqual, byte(regOLat))
		test.That(t, bus.writes[1].data[0], test.ShouldEqual, byte(0x00))
	})

	t.Run("first failure stops the sequence", func(t *testing.T) {
		bus := newRegBus()
		bus.failReg = regIODir
		bus.failErr = errors.Wrap(buses.ErrIO, "direction write refused")

		exp, err := New(bus, DefaultAddr, golog.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		err = exp.Init(ctx)
		test.That(t, errors.Is(err, buses.ErrIO), test.ShouldBeTrue)
		// The latch write was never attempted.
		test.That(t, len(bus.writes), test.ShouldEqual, 0)
	})
}

func TestOutputsNeverTouchInputs(t *testing.T) {
	ctx := context.Background()
	bus := newRegBus()
	exp, err := New(bus, DefaultAddr, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, exp.Init(ctx), test.ShouldBeNil)

	// Both buttons held: input register reads 0b11.
	bus.regs[regGPIO] = 0x03

	test.That(t, exp.WriteOutputs(ctx, 0xFF), test.ShouldBeNil)

	// The latch got the masked value and the input path reads its own
	// register, untouched by the write.
	test.That(t, bus.regs[regOLat], test.ShouldEqual, byte(0xFC))
	inputs, err := exp.ReadInputs(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, inputs, test.ShouldEqual, byte(0x03))
}

func TestExpanderArgs(t *testing.T) {
	_, err := New(nil, DefaultAddr, golog.NewTestLogger(t))
	test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)

	_, err = New(newRegBus(), 0x85, golog.NewTestLogger(t))
	test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
}

func TestExpanderOnSimBus(t *testing.T) {
	ctx := context.Background()
	logger := golog.NewTestLogger(t)

	bus, err := sim.NewI2C(buses.I2CConfig{BusName: "sim-bus-0"}, logger)
	test.That(t, err, test.ShouldBeNil)

	// Nothing answers at the expander's address on the simulated bus, and
	// the first failing sub-step's status comes straight back.
	exp, err := New(bus, DefaultAddr, logger)
	test.That(t, err, test.ShouldBeNil)
	err = exp.Init(ctx)
	test.That(t, errors.Is(err, buses.ErrNoDevice), test.ShouldBeTrue)
}
