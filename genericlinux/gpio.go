//go:build linux

// This file drives GPIO lines through the chardev ioctl interface, indirectly
// by way of mkch's gpio package.

package genericlinux

import (
	"context"
	"strings"

	"github.com/edaniels/golog"
	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/emblinux/buskit/buses"
)

// lineGroup is the slice of the mkch line API we use for a bulk request. The
// tests substitute an in-memory loopback for it.
type lineGroup interface {
	SetValues(values []byte) error
	Values() ([]byte, error)
	Close() error
}

type gpioBank struct {
	chip *gpio.Chip

	leds          lineGroup
	ledCount      int
	ledsActiveLow bool

	btns          lineGroup
	btnsActiveLow bool

	logger golog.Logger
}

// NewGPIO opens the chip and acquires the LED lines as one bulk output
// request (initialized low) and the button lines as a second bulk input
// request. Any acquisition failure releases everything already held and
// returns ErrConfigRejected.
func NewGPIO(cfg buses.GPIOConfig, logger golog.Logger) (buses.GPIO, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chip, err := gpio.OpenChip(chipPath(cfg.ChipName))
	if err != nil {
		return nil, errors.Wrapf(buses.ErrIO, "open gpio chip %q: %v", cfg.ChipName, err)
	}

	ledOffsets := make([]uint32, cfg.LEDCount)
	for i := range ledOffsets {
		ledOffsets[i] = uint32(cfg.LEDBase + i)
	}
	leds, err := chip.OpenLines(ledOffsets, make([]byte, cfg.LEDCount), gpio.Output, "buskit-leds")
	if err != nil {
		multierr.AppendInto(&err, chip.Close())
		return nil, errors.Wrapf(buses.ErrConfigRejected, "request %d led lines at base %d: %v",
			cfg.LEDCount, cfg.LEDBase, err)
	}

	btnOffsets := []uint32{uint32(cfg.Btn0Offset), uint32(cfg.Btn1Offset)}
	btns, err := chip.OpenLines(btnOffsets, make([]byte, len(btnOffsets)), gpio.Input, "buskit-btns")
	if err != nil {
		multierr.AppendInto(&err, leds.Close())
		multierr.AppendInto(&err, chip.Close())
		return nil, errors.Wrapf(buses.ErrConfigRejected, "request button lines (%d,%d): %v",
			cfg.Btn0Offset, cfg.Btn1Offset, err)
	}

	logger.Debugw("gpio bank open",
		"chip", cfg.ChipName, "leds", cfg.LEDCount, "led_base", cfg.LEDBase,
		"btn0", cfg.Btn0Offset, "btn1", cfg.Btn1Offset)
	return &gpioBank{
		chip:          chip,
		leds:          leds,
		ledCount:      cfg.LEDCount,
		ledsActiveLow: cfg.LEDsActiveLow,
		btns:          btns,
		btnsActiveLow: cfg.BtnsActiveLow,
		logger:        logger,
	}, nil
}

// chipPath accepts either a bare chip name ("gpiochip0") or a full device
// path and returns the path form the chardev API wants.
func chipPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/dev/" + name
}

func (b *gpioBank) WriteLEDs(ctx context.Context, value byte) error {
	if b.leds == nil {
		return errors.Wrap(buses.ErrInvalidArgument, "gpio bank closed")
	}
	if err := b.leds.SetValues(ledLevels(value, b.ledCount, b.ledsActiveLow)); err != nil {
		return errors.Wrapf(buses.ErrIO, "bulk write leds: %v", err)
	}
	return nil
}

func (b *gpioBank) ReadButtons(ctx context.Context) (byte, error) {
	if b.btns == nil {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "gpio bank closed")
	}
	levels, err := b.btns.Values()
	if err != nil {
		return 0, errors.Wrapf(buses.ErrIO, "bulk read buttons: %v", err)
	}
	return buttonBits(levels, b.btnsActiveLow), nil
}

func (b *gpioBank) Close() error {
	var err error
	if b.leds != nil {
		multierr.AppendInto(&err, b.leds.Close())
		b.leds = nil
	}
	if b.btns != nil {
		multierr.AppendInto(&err, b.btns.Close())
		b.btns = nil
	}
	if b.chip != nil {
		multierr.AppendInto(&err, b.chip.Close())
		b.chip = nil
	}
	return err
}

// ledLevels translates an 8-bit value into per-line electrical levels: bit i
// drives line i, inverted when the bank is wired active-low.
func ledLevels(value byte, count int, activeLow bool) []byte {
	levels := make([]byte, count)
	for i := range levels {
		bit := (value >> i) & 1
		if activeLow {
			bit ^= 1
		}
		levels[i] = bit
	}
	return levels
}

// buttonBits normalizes sampled electrical levels to pressed=1 semantics and
// packs them as bit0/bit1.
func buttonBits(levels []byte, activeLow bool) byte {
	var bits byte
	for i, lv := range levels {
		if i >= 2 {
			break
		}
		pressed := byte(0)
		if lv != 0 {
			pressed = 1
		}
		if activeLow {
			pressed ^= 1
		}
		bits |= pressed << i
	}
	return bits
}
