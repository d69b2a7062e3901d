package sim

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/emblinux/buskit/buses"
)

// GPIO is a loopback digital bank. It applies the same polarity translation
// as the kernel backend but stores electrical levels in memory, so tests and
// hardware-free demos can inspect what was driven and script what is read.
type GPIO struct {
	ledCount      int
	ledsActiveLow bool
	btnsActiveLow bool

	ledLevels []byte
	btnLevels [2]byte

	closed bool
	logger golog.Logger
}

// NewGPIO opens a loopback bank. The concrete type is returned so callers
// can reach the inspection hooks; it satisfies buses.GPIO.
func NewGPIO(cfg buses.GPIOConfig, logger golog.Logger) (*GPIO, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debugw("sim gpio bank open", "chip", cfg.ChipName, "leds", cfg.LEDCount)
	return &GPIO{
		ledCount:      cfg.LEDCount,
		ledsActiveLow: cfg.LEDsActiveLow,
		btnsActiveLow: cfg.BtnsActiveLow,
		ledLevels:     make([]byte, cfg.LEDCount),
		logger:        logger,
	}, nil
}

func (g *GPIO) WriteLEDs(ctx context.Context, value byte) error {
	if g.closed {
		return errors.Wrap(buses.ErrInvalidArgument, "gpio bank closed")
	}
	for i := range g.ledLevels {
		bit := (value >> i) & 1
		if g.ledsActiveLow {
			bit ^= 1
		}
		g.ledLevels[i] = bit
	}
	return nil
}

func (g *GPIO) ReadButtons(ctx context.Context) (byte, error) {
	if g.closed {
		return 0, errors.Wrap(buses.ErrInvalidArgument, "gpio bank closed")
	}
	var bits byte
	for i, lv := range g.btnLevels {
		pressed := lv & 1
		if g.btnsActiveLow {
			pressed ^= 1
		}
		bits |= pressed << i
	}
	return bits, nil
}

func (g *GPIO) Close() error {
	g.closed = true
	return nil
}

// LEDLevels returns a copy of the electrical levels last driven onto the
// output lines (post-polarity).
func (g *GPIO) LEDLevels() []byte {
	out := make([]byte, len(g.ledLevels))
	copy(out, g.ledLevels)
	return out
}

// SetButtonLevels scripts the electrical levels the next ReadButtons will
// sample (pre-polarity).
func (g *GPIO) SetButtonLevels(btn0, btn1 byte) {
	g.btnLevels[0] = btn0 & 1
	g.btnLevels[1] = btn1 & 1
}
