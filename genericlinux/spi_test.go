package genericlinux

import (
	"bytes"
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"

	"github.com/emblinux/buskit/buses"
)

// fakeSPIConn implements spi.Conn in memory. Each message is recorded with
// its packets; receive buffers are filled from reply in phase order.
type fakeSPIConn struct {
	messages [][]spi.Packet
	txW      [][]byte
	txR      []int
	reply    []byte
	err      error
}

func (f *fakeSPIConn) String() string { return "fake-spi" }

func (f *fakeSPIConn) Duplex() conn.Duplex { return conn.Full }

func (f *fakeSPIConn) Tx(w, r []byte) error {
	f.txW = append(f.txW, append([]byte(nil), w...))
	f.txR = append(f.txR, len(r))
	if f.err != nil {
		return f.err
	}
	copy(r, f.reply)
	return nil
}

func (f *fakeSPIConn) TxPackets(p []spi.Packet) error {
	recorded := make([]spi.Packet, len(p))
	for i, pkt := range p {
		recorded[i] = spi.Packet{
			W:      append([]byte(nil), pkt.W...),
			R:      pkt.R,
			KeepCS: pkt.KeepCS,
		}
	}
	f.messages = append(f.messages, recorded)
	if f.err != nil {
		return f.err
	}
	reply := f.reply
	for _, pkt := range p {
		if pkt.R != nil {
			n := copy(pkt.R, reply)
			reply = reply[n:]
		}
	}
	return nil
}

func fakeSPI(f *fakeSPIConn, t *testing.T) *spiBus {
	return &spiBus{
		conn: f,
		cfg: buses.SPIConfig{
			DevName:     "/dev/spidev0.0",
			Mode:        buses.SPIMode0,
			MaxSpeedHz:  1000000,
			BitsPerWord: 8,
		},
		logger: golog.NewTestLogger(t),
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("nil tx clocks the fill pattern, never junk", func(t *testing.T) {
		f := &fakeSPIConn{reply: []byte{1, 2, 3}}
		s := fakeSPI(f, t)
		rx := make([]byte, 3)
		test.That(t, s.Transfer(ctx, nil, rx, 3), test.ShouldBeNil)
		test.That(t, bytes.Equal(f.txW[0], []byte{0xFF, 0xFF, 0xFF}), test.ShouldBeTrue)
		test.That(t, bytes.Equal(rx, []byte{1, 2, 3}), test.ShouldBeTrue)
	})

	t.Run("nil rx discards received bytes", func(t *testing.T) {
		f := &fakeSPIConn{}
		s := fakeSPI(f, t)
		test.That(t, s.Transfer(ctx, []byte{9, 8}, nil, 2), test.ShouldBeNil)
		test.That(t, f.txR[0], test.ShouldEqual, 0)
	})

	t.Run("zero length is invalid", func(t *testing.T) {
		s := fakeSPI(&fakeSPIConn{}, t)
		err := s.Transfer(ctx, nil, nil, 0)
		test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
	})

	t.Run("short buffers are invalid", func(t *testing.T) {
		s := fakeSPI(&fakeSPIConn{}, t)
		err := s.Transfer(ctx, []byte{1}, nil, 2)
		test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
	})

	t.Run("driver failure is an i/o failure", func(t *testing.T) {
		f := &fakeSPIConn{err: errors.New("xfer fail")}
		s := fakeSPI(f, t)
		err := s.Transfer(ctx, []byte{1}, nil, 1)
		test.That(t, errors.Is(err, buses.ErrIO), test.ShouldBeTrue)
	})
}

func TestTransferSegments(t *testing.T) {
	ctx := context.Background()

	t.Run("command then capture is one two-phase message", func(t *testing.T) {
		f := &fakeSPIConn{reply: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
		s := fakeSPI(f, t)
		tx0 := []byte{0x9F, 0x00}
		rx := make([]byte, 4)
		test.That(t, s.TransferSegments(ctx, tx0, nil, rx), test.ShouldBeNil)

		test.That(t, len(f.messages), test.ShouldEqual, 1)
		msg := f.messages[0]
		test.That(t, len(msg), test.ShouldEqual, 2)

		// Phase 0: command out, response discarded, select held.
		test.That(t, bytes.Equal(msg[0].W, tx0), test.ShouldBeTrue)
		test.That(t, msg[0].R, test.ShouldBeNil)
		test.That(t, msg[0].KeepCS, test.ShouldBeTrue)

		// Phase 1: fill pattern out, capture in, select released.
		test.That(t, bytes.Equal(msg[1].W, []byte{0xFF, 0xFF, 0xFF, 0xFF}), test.ShouldBeTrue)
		test.That(t, msg[1].KeepCS, test.ShouldBeFalse)
		test.That(t, bytes.Equal(rx, []byte{0xDE, 0xAD, 0xBE, 0xEF}), test.ShouldBeTrue)
	})

	t.Run("zero-length phases are omitted", func(t *testing.T) {
		f := &fakeSPIConn{}
		s := fakeSPI(f, t)
		test.That(t, s.TransferSegments(ctx, []byte{0xA5}, nil, nil), test.ShouldBeNil)
		test.That(t, len(f.messages[0]), test.ShouldEqual, 1)
		test.That(t, f.messages[0][0].KeepCS, test.ShouldBeFalse)

		f2 := &fakeSPIConn{}
		s2 := fakeSPI(f2, t)
		rx := make([]byte, 2)
		test.That(t, s2.TransferSegments(ctx, nil, nil, rx), test.ShouldBeNil)
		test.That(t, len(f2.messages[0]), test.ShouldEqual, 1)
		test.That(t, f2.messages[0][0].R, test.ShouldNotBeNil)
	})

	t.Run("both phases empty is invalid", func(t *testing.T) {
		s := fakeSPI(&fakeSPIConn{}, t)
		err := s.TransferSegments(ctx, nil, nil, nil)
		test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
	})

	t.Run("phase one tx and rx must agree on length", func(t *testing.T) {
		s := fakeSPI(&fakeSPIConn{}, t)
		err := s.TransferSegments(ctx, nil, []byte{1, 2, 3}, make([]byte, 2))
		test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
	})
}

func TestBurstTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("hold keeps chip-select asserted", func(t *testing.T) {
		f := &fakeSPIConn{}
		s := fakeSPI(f, t)
		test.That(t, s.BurstTransfer(ctx, []byte{1, 2}, nil, 2, true), test.ShouldBeNil)
		test.That(t, s.BurstTransfer(ctx, []byte{3, 4}, nil, 2, false), test.ShouldBeNil)

		test.That(t, len(f.messages), test.ShouldEqual, 2)
		test.That(t, f.messages[0][0].KeepCS, test.ShouldBeTrue)
		test.That(t, f.messages[1][0].KeepCS, test.ShouldBeFalse)
	})
}

func TestSPIAccessors(t *testing.T) {
	ctx := context.Background()

	t.Run("info mirrors the applied config", func(t *testing.T) {
		s := fakeSPI(&fakeSPIConn{}, t)
		info, err := s.Info(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, info.Name, test.ShouldEqual, "/dev/spidev0.0")
		test.That(t, info.SpeedHz, test.ShouldEqual, uint32(1000000))
		test.That(t, info.Mode, test.ShouldEqual, buses.SPIMode0)
		test.That(t, info.BitsPerWord, test.ShouldEqual, uint8(8))
	})

	t.Run("closed bus rejects transfers", func(t *testing.T) {
		s := fakeSPI(&fakeSPIConn{}, t)
		test.That(t, s.Close(), test.ShouldBeNil)
		err := s.Transfer(ctx, []byte{1}, nil, 1)
		test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
	})

	t.Run("config validation", func(t *testing.T) {
		_, err := NewSPI(buses.SPIConfig{DevName: "/dev/spidev0.0", Mode: 4}, golog.NewTestLogger(t))
		test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
		_, err = NewSPI(buses.SPIConfig{}, golog.NewTestLogger(t))
		test.That(t, errors.Is(err, buses.ErrInvalidArgument), test.ShouldBeTrue)
	})
}
