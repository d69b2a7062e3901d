package sim

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/emblinux/buskit/buses"
)

func loopbackConfig(ledsActiveLow, btnsActiveLow bool) buses.GPIOConfig {
	return buses.GPIOConfig{
		ChipName:      "gpiochip-sim",
		LEDCount:      buses.MaxLEDLines,
		Btn0Offset:    20,
		Btn1Offset:    21,
		LEDsActiveLow: ledsActiveLow,
		BtnsActiveLow: btnsActiveLow,
	}
}

func TestLoopbackLEDRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, activeLow := range []bool{false, true} {
		bank, err := NewGPIO(loopbackConfig(activeLow, false), golog.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)

		for v := 0; v < 256; v++ {
			test.That(t, bank.WriteLEDs(ctx, byte(v)), test.ShouldBeNil)

			var back byte
			for i, lv := range bank.LEDLevels() {
				bit := lv
				if activeLow {
					bit ^= 1
				}
				back |= bit << i
			}
			test.That(t, back, test.ShouldEqual, byte(v))
		}
	}
}

func TestLoopbackButtons(t *testing.T) {
	ctx := context.Background()

	for _, activeLow := range []bool{false, true} {
		bank, err := NewGPIO(loopbackConfig(false, activeLow), golog.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)

		for combo := byte(0); combo < 4; combo++ {
			lv0 := combo & 1
			lv1 := (combo >> 1) & 1
			if activeLow {
				lv0 ^= 1
				lv1 ^= 1
			}
			bank.SetButtonLevels(lv0, lv1)

			bits, err := bank.ReadButtons(ctx)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, bits, test.ShouldEqual, combo)
		}
	}
}

func TestLoopbackLifecycle(t *testing.T) {
	ctx := context.Background()

	bad := loopbackConfig(false, false)
	bad.LEDCount = 0
	_, err := NewGPIO(bad, golog.NewTestLogger(t))
	test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)

	bank, err := NewGPIO(loopbackConfig(false, false), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bank.Close(), test.ShouldBeNil)
	err = bank.WriteLEDs(ctx, 1)
	test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
}
