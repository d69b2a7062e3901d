package genericlinux

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/emblinux/buskit/buses"
)

type spiBus struct {
	port spi.PortCloser
	conn spi.Conn

	cfg    buses.SPIConfig
	logger golog.Logger
}

// NewSPI opens the spidev node and applies mode, bit order, word width and
// speed as one logical operation; if any element is rejected the open fails
// with ErrConfigRejected and nothing stays held.
func NewSPI(cfg buses.SPIConfig, logger golog.Logger) (buses.SPI, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BitsPerWord == 0 {
		cfg.BitsPerWord = 8
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrapf(buses.ErrBusUnavailable, "periph host init: %v", err)
	}
	port, conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debugw("spi bus open",
		"dev", cfg.DevName, "mode", cfg.Mode, "bpw", cfg.BitsPerWord,
		"lsb_first", cfg.LSBFirst, "speed_hz", cfg.MaxSpeedHz)
	return &spiBus{port: port, conn: conn, cfg: cfg, logger: logger}, nil
}

func connect(cfg buses.SPIConfig) (spi.PortCloser, spi.Conn, error) {
	port, err := spireg.Open(cfg.DevName)
	if err != nil {
		return nil, nil, errors.Wrapf(buses.ErrBusUnavailable, "open spi port %q: %v", cfg.DevName, err)
	}
	mode := spi.Mode(cfg.Mode)
	if cfg.LSBFirst {
		mode |= spi.LSBFirst
	}
	conn, err := port.Connect(physic.Frequency(cfg.MaxSpeedHz)*physic.Hertz, mode, int(cfg.BitsPerWord))
	if err != nil {
		err = errors.Wrapf(buses.ErrConfigRejected, "configure spi port %q: %v", cfg.DevName, err)
		if closeErr := port.Close(); closeErr != nil {
			err = errors.Wrapf(err, "also failed to close port: %v", closeErr)
		}
		return nil, nil, err
	}
	return port, conn, nil
}

func (s *spiBus) checkOpen() error {
	if s.conn == nil {
		return errors.Wrap(buses.ErrInvalidArgument, "spi bus closed")
	}
	return nil
}

// fillBytes returns n bytes of the fill pattern clocked out when the caller
// supplies no transmit data.
func fillBytes(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = buses.FillByte
	}
	return buf
}

func (s *spiBus) txBuffers(tx, rx []byte, n int) (w, r []byte, err error) {
	if n <= 0 {
		return nil, nil, errors.Wrapf(buses.ErrInvalidArgument, "transfer length %d", n)
	}
	if tx == nil {
		w = fillBytes(n)
	} else {
		if len(tx) < n {
			return nil, nil, errors.Wrapf(buses.ErrInvalidArgument, "tx holds %d of %d bytes", len(tx), n)
		}
		w = tx[:n]
	}
	if rx != nil {
		if len(rx) < n {
			return nil, nil, errors.Wrapf(buses.ErrInvalidArgument, "rx holds %d of %d bytes", len(rx), n)
		}
		r = rx[:n]
	}
	return w, r, nil
}

func (s *spiBus) Transfer(ctx context.Context, tx, rx []byte, n int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	w, r, err := s.txBuffers(tx, rx, n)
	if err != nil {
		return err
	}
	if err := s.conn.Tx(w, r); err != nil {
		return errors.Wrapf(buses.ErrIO, "spi transfer of %d bytes on %s: %v", n, s.cfg.DevName, err)
	}
	return nil
}

func (s *spiBus) TransferSegments(ctx context.Context, tx0, tx1, rx []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	n1 := len(rx)
	if tx1 != nil {
		if rx != nil && len(tx1) != len(rx) {
			return errors.Wrapf(buses.ErrInvalidArgument, "phase 1 tx/rx length mismatch: %d vs %d",
				len(tx1), len(rx))
		}
		n1 = len(tx1)
	}

	// Zero-length phases are omitted from the message.
	var packets []spi.Packet
	if len(tx0) > 0 {
		packets = append(packets, spi.Packet{W: tx0, KeepCS: true})
	}
	if n1 > 0 {
		w := tx1
		if w == nil {
			w = fillBytes(n1)
		}
		packets = append(packets, spi.Packet{W: w, R: rx})
	}
	if len(packets) == 0 {
		return errors.Wrap(buses.ErrInvalidArgument, "no non-empty phase")
	}
	// The final phase releases chip-select.
	packets[len(packets)-1].KeepCS = false

	if err := s.conn.TxPackets(packets); err != nil {
		return errors.Wrapf(buses.ErrIO, "spi segmented transfer on %s: %v", s.cfg.DevName, err)
	}
	return nil
}

func (s *spiBus) BurstTransfer(ctx context.Context, tx, rx []byte, n int, holdSelect bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	w, r, err := s.txBuffers(tx, rx, n)
	if err != nil {
		return err
	}
	// KeepCS leaves the select line asserted after the phase so a following
	// call continues the same peripheral-side transaction.
	if err := s.conn.TxPackets([]spi.Packet{{W: w, R: r, KeepCS: holdSelect}}); err != nil {
		return errors.Wrapf(buses.ErrIO, "spi burst of %d bytes on %s: %v", n, s.cfg.DevName, err)
	}
	return nil
}

func (s *spiBus) Write(ctx context.Context, tx []byte) error {
	return s.Transfer(ctx, tx, nil, len(tx))
}

func (s *spiBus) Read(ctx context.Context, rx []byte) error {
	return s.Transfer(ctx, nil, rx, len(rx))
}

// SetSpeed reopens the port at the new clock rate; spidev applies the whole
// configuration at connect time. On failure the handle is left closed and
// unusable.
func (s *spiBus) SetSpeed(ctx context.Context, hz uint32) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.port.Close(); err != nil {
		s.logger.Debugw("spi port close before reconfigure", "dev", s.cfg.DevName, "error", err)
	}
	s.port, s.conn = nil, nil

	cfg := s.cfg
	cfg.MaxSpeedHz = hz
	port, conn, err := connect(cfg)
	if err != nil {
		return errors.Wrapf(buses.ErrBusUnavailable, "reconfigure %q at %d Hz: %v", cfg.DevName, hz, err)
	}
	s.port, s.conn, s.cfg = port, conn, cfg
	return nil
}

func (s *spiBus) Info(ctx context.Context) (buses.SPIInfo, error) {
	if err := s.checkOpen(); err != nil {
		return buses.SPIInfo{}, err
	}
	return buses.SPIInfo{
		Name:        s.cfg.DevName,
		SpeedHz:     s.cfg.MaxSpeedHz,
		Mode:        s.cfg.Mode,
		BitsPerWord: s.cfg.BitsPerWord,
		LSBFirst:    s.cfg.LSBFirst,
	}, nil
}

func (s *spiBus) Close() error {
	var err error
	if s.port != nil {
		err = s.port.Close()
	}
	s.port, s.conn = nil, nil
	return err
}
