package buses

import (
	"context"

	"github.com/pkg/errors"
)

// MaxLEDLines is the size of the output bank: an 8-bit value maps onto at
// most 8 lines.
const MaxLEDLines = 8

// GPIOConfig describes a digital I/O bank: a contiguous run of LED output
// lines plus two button input lines on one GPIO chip. The line set is fixed
// at open time.
type GPIOConfig struct {
	// ChipName is the kernel chip identifier, e.g. "gpiochip0". A full
	// device path is also accepted.
	ChipName string
	// LEDBase is the line offset of the first LED; LEDs occupy
	// LEDBase..LEDBase+LEDCount-1.
	LEDBase  int
	LEDCount int
	// Button line offsets. Exactly two buttons per bank.
	Btn0Offset int
	Btn1Offset int
	// Active-low wiring flags. When set, the electrical level is inverted at
	// this boundary so callers always see 1=lit / 1=pressed.
	LEDsActiveLow bool
	BtnsActiveLow bool
}

// Validate checks the config without touching hardware.
func (c *GPIOConfig) Validate() error {
	if c.ChipName == "" {
		return errors.Wrap(ErrInvalidArgument, "gpio config needs a chip name")
	}
	if c.LEDCount < 1 || c.LEDCount > MaxLEDLines {
		return errors.Wrapf(ErrInvalidArgument, "led count %d outside 1..%d", c.LEDCount, MaxLEDLines)
	}
	if c.LEDBase < 0 || c.Btn0Offset < 0 || c.Btn1Offset < 0 {
		return errors.Wrap(ErrInvalidArgument, "negative line offset")
	}
	return nil
}

// GPIO is a bulk digital I/O bank. Writes and reads each translate to a
// single transaction covering the whole line group, so the lines change and
// sample together with no inter-line skew.
type GPIO interface {
	// WriteLEDs applies the low LEDCount bits of value to the output bank in
	// one bulk write. Bit i drives LED i, polarity already accounted for.
	WriteLEDs(ctx context.Context, value byte) error

	// ReadButtons samples both buttons in one bulk read and returns them
	// packed as bit0/bit1 under pressed=1 semantics.
	ReadButtons(ctx context.Context) (byte, error)

	// Close releases the line groups and the chip. Best-effort and
	// idempotent per resource group.
	Close() error
}
