// Package buses defines the contracts for the peripheral bus families exposed
// by buskit: a bulk digital I/O bank, an addressable (I2C-style) bus, and a
// full-duplex synchronous (SPI-style) bus.
//
// Each contract is satisfied both by a kernel-backed implementation (package
// genericlinux) and by a software simulation (package sim). Backend selection
// happens at construction time; callers hold the interface and never inspect
// which backend is behind it.
//
// A handle is exclusively owned by whoever opened it. No internal
// synchronization is provided, so concurrent calls into one handle must be
// serialized by the caller. Operations are synchronous and, once issued, are
// not cancellable; the context parameters exist for API uniformity and
// tracing, not for aborting an in-flight transaction.
package buses

import "github.com/pkg/errors"

// Status taxonomy shared by every bus family. Implementations wrap these
// sentinels with call-specific context, so errors.Is works against them.
var (
	// ErrInvalidArgument covers nil handles and buffers, zero or oversize
	// lengths, and out-of-range addresses.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConfigRejected means an open-time acquisition or mode setting was
	// refused. A failed open leaves no resource held.
	ErrConfigRejected = errors.New("configuration rejected")

	// ErrNoDevice means the addressed peripheral did not respond.
	ErrNoDevice = errors.New("no device at address")

	// ErrIO means a transaction was issued but came back short, garbled, or
	// with a generic driver error.
	ErrIO = errors.New("i/o failure")

	// ErrBusUnavailable is a channel-level failure not tied to a particular
	// device, e.g. the device node could not be opened.
	ErrBusUnavailable = errors.New("bus unavailable")
)
