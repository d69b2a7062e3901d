package buses

import (
	"context"

	"github.com/pkg/errors"
)

// SPIMode selects clock polarity and phase (standard modes 0..3).
type SPIMode uint8

// The four standard CPOL/CPHA combinations.
const (
	SPIMode0 SPIMode = 0 // CPOL=0 CPHA=0
	SPIMode1 SPIMode = 1 // CPOL=0 CPHA=1
	SPIMode2 SPIMode = 2 // CPOL=1 CPHA=0
	SPIMode3 SPIMode = 3 // CPOL=1 CPHA=1
)

// FillByte is clocked out in place of transmit data when the caller passes a
// nil tx buffer. Receive-only transfers never clock out uninitialized memory.
const FillByte = 0xFF

// SPIConfig describes a synchronous bus channel: one controller plus
// chip-select target. The whole config is applied as one logical operation at
// open; if any element is rejected the open fails with ErrConfigRejected.
type SPIConfig struct {
	// DevName is the device-file path on the real backend, e.g.
	// "/dev/spidev0.0".
	DevName    string
	Mode       SPIMode
	MaxSpeedHz uint32
	// BitsPerWord defaults to 8 when zero.
	BitsPerWord uint8
	// LSBFirst selects LSB-first bit order; default is MSB-first.
	LSBFirst bool
}

// Validate checks the config without touching hardware.
func (c *SPIConfig) Validate() error {
	if c.DevName == "" {
		return errors.Wrap(ErrInvalidArgument, "spi config needs a device name")
	}
	if c.Mode > SPIMode3 {
		return errors.Wrapf(ErrInvalidArgument, "spi mode %d outside 0..3", c.Mode)
	}
	return nil
}

// SPIInfo reports a handle's current configuration, for logging.
type SPIInfo struct {
	Name        string
	SpeedHz     uint32
	Mode        SPIMode
	BitsPerWord uint8
	LSBFirst    bool
}

// SPI is a full-duplex synchronous bus handle.
type SPI interface {
	// Transfer clocks n bytes in one phase. A nil tx sends FillByte
	// padding; a nil rx discards received bytes. Non-nil buffers must hold
	// at least n bytes. n must be positive.
	Transfer(ctx context.Context, tx, rx []byte, n int) error

	// TransferSegments issues up to two ordered phases as ONE message under
	// a single chip-select assertion. Phase 0 sends tx0 and discards any
	// response. Phase 1 sends tx1 (or FillByte padding when tx1 is nil)
	// while capturing into rx; its length is len(tx1), or len(rx) when tx1
	// is nil, and when both are given the lengths must match. A phase of
	// length zero is omitted from the message entirely.
	TransferSegments(ctx context.Context, tx0, tx1, rx []byte) error

	// BurstTransfer is Transfer with explicit chip-select control: when
	// holdSelect is true the select line stays asserted after the phase
	// completes, so a following call continues the same peripheral-side
	// transaction. The handle keeps no hold state between calls; chaining
	// correctness is the caller's responsibility.
	BurstTransfer(ctx context.Context, tx, rx []byte, n int, holdSelect bool) error

	// Write is a write-only Transfer (received bytes discarded).
	Write(ctx context.Context, tx []byte) error

	// Read is a read-only Transfer (FillByte clocked out).
	Read(ctx context.Context, rx []byte) error

	// SetSpeed changes the clock rate of the open channel.
	SetSpeed(ctx context.Context, hz uint32) error

	// Info returns the configuration currently applied to the channel.
	Info(ctx context.Context) (SPIInfo, error)

	// Close releases the channel. Best-effort.
	Close() error
}
