// Package main contains a command to exercise the buskit bus families,
// simulated or real: watching the temperature sensor, running the
// button-driven LED counters, or echoing over a serial channel.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/emblinux/buskit/buses"
	"github.com/emblinux/buskit/expander"
	"github.com/emblinux/buskit/genericlinux"
	"github.com/emblinux/buskit/sim"
)

var logger = golog.NewDevelopmentLogger("busdemo")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Demo    string `flag:"demo,default=temp,usage=demo to run: temp | counter | gpio | uart"`
	Bus     string `flag:"bus,default=sim-bus-0,usage=i2c device path (ignored with -sim)"`
	Sim     bool   `flag:"sim,default=true,usage=use the simulated backends"`
	Addr    int    `flag:"addr,default=72,usage=sensor 7-bit address"`
	UARTDev string `flag:"uart,default=/dev/ttyUSB0,usage=uart device path (ignored with -sim)"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	switch argsParsed.Demo {
	case "temp":
		bus, err := openI2C(argsParsed)
		if err != nil {
			return err
		}
		return watchSensor(ctx, bus, byte(argsParsed.Addr))
	case "counter":
		bus, err := openI2C(argsParsed)
		if err != nil {
			return err
		}
		return runExpanderCounter(ctx, bus)
	case "gpio":
		return runGPIOCounter(ctx, argsParsed.Sim)
	case "uart":
		return runUARTEcho(ctx, argsParsed)
	default:
		return errors.Wrapf(buses.ErrInvalidArgument, "unknown demo %q", argsParsed.Demo)
	}
}

func openI2C(args Arguments) (buses.I2C, error) {
	cfg := buses.I2CConfig{BusName: args.Bus, BusSpeedHz: 100000}
	if args.Sim {
		return sim.NewI2C(cfg, logger)
	}
	return genericlinux.NewI2C(cfg, logger)
}

func watchSensor(ctx context.Context, bus buses.I2C, addr byte) (err error) {
	defer func() {
		err = multierr.Combine(err, bus.Close())
	}()

	if probeErr := bus.Probe(ctx, addr); probeErr != nil {
		logger.Warnw("sensor did not respond", "addr", addr, "error", probeErr)
	} else {
		logger.Infow("sensor present", "addr", addr)
	}

	var ticks int
	for {
		if !utils.SelectContextOrWait(ctx, time.Second) {
			return ctx.Err()
		}
		ticks++

		raw, readErr := bus.ReadReg8(ctx, addr, sim.TempHighReg, 2)
		if readErr != nil {
			logger.Errorw("temperature read failed", "error", readErr)
			continue
		}
		logger.Infow("temperature", "deg_c", decodeTemp(raw[0], raw[1]), "hi", raw[0], "lo", raw[1])

		// Periodically rewrite the low byte of the reading, exercising the
		// register-write path the way a calibration tweak would.
		if ticks%10 == 0 {
			if kickErr := bus.WriteReg8(ctx, addr, sim.OverrideReg, []byte{0x20}); kickErr != nil {
				logger.Errorw("sensor override failed", "error", kickErr)
			}
		}
	}
}

// decodeTemp unpacks the 12-bit reading: raw12 = (((hi<<8)|lo)>>4), 0.0625
// degC per LSB.
func decodeTemp(hi, lo byte) float64 {
	raw12 := (uint16(hi)<<8 | uint16(lo)) >> 4 & 0xFFF
	return float64(raw12) * 0.0625
}

// buttonCounter is the counter state machine shared by the counter demos:
// a rising edge on button 0 increments (saturating at 255), a rising edge on
// button 1 resets. Levels held pressed do not retrigger.
type buttonCounter struct {
	last  byte
	count byte
}

// observe feeds one pressed=1 sample (bit0/bit1) and reports the counter
// plus whether it changed.
func (c *buttonCounter) observe(pressed byte) (byte, bool) {
	rising := pressed &^ c.last
	c.last = pressed

	changed := false
	if rising&0x01 != 0 && c.count < 255 {
		c.count++
		changed = true
	}
	if rising&0x02 != 0 && c.count != 0 {
		c.count = 0
		changed = true
	}
	return c.count, changed
}

const counterPollInterval = 20 * time.Millisecond

// runExpanderCounter drives the counter through the I/O expander: buttons on
// the expander's input bits, count shown on its output bits. The expander's
// buttons are wired active-low.
func runExpanderCounter(ctx context.Context, bus buses.I2C) (err error) {
	defer func() {
		err = multierr.Combine(err, bus.Close())
	}()

	exp, err := expander.New(bus, expander.DefaultAddr, logger)
	if err != nil {
		return err
	}
	if err := exp.Init(ctx); err != nil {
		return errors.Wrap(err, "expander init")
	}
	if err := exp.WriteOutputs(ctx, 0); err != nil {
		return err
	}
	logger.Infow("expander counter running", "addr", expander.DefaultAddr)

	var counter buttonCounter
	for {
		if !utils.SelectContextOrWait(ctx, counterPollInterval) {
			return ctx.Err()
		}
		pins, readErr := exp.ReadInputs(ctx)
		if readErr != nil {
			continue
		}
		pressed := ^pins & 0x03
		if count, changed := counter.observe(pressed); changed {
			if writeErr := exp.WriteOutputs(ctx, count); writeErr != nil {
				logger.Errorw("counter output write failed", "error", writeErr)
			}
			logger.Infow("counter", "count", count, "pressed", pressed)
		}
	}
}

// runGPIOCounter drives the same counter on the digital bank directly. With
// the simulated backend the buttons are scripted so the counter visibly runs
// without hardware.
func runGPIOCounter(ctx context.Context, simMode bool) (err error) {
	cfg := buses.GPIOConfig{
		ChipName:      "gpiochip0",
		LEDBase:       0,
		LEDCount:      8,
		Btn0Offset:    8,
		Btn1Offset:    9,
		BtnsActiveLow: !simMode,
	}

	var bank buses.GPIO
	var scripted *sim.GPIO
	if simMode {
		scripted, err = sim.NewGPIO(cfg, logger)
		bank = scripted
	} else {
		bank, err = genericlinux.NewGPIO(cfg, logger)
	}
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, bank.Close())
	}()

	if err := bank.WriteLEDs(ctx, 0); err != nil {
		return err
	}
	logger.Infow("gpio counter running", "chip", cfg.ChipName, "sim", simMode)

	var counter buttonCounter
	var tick int
	for {
		if !utils.SelectContextOrWait(ctx, counterPollInterval) {
			return ctx.Err()
		}
		tick++
		if scripted != nil {
			scriptButtons(scripted, tick)
		}

		pressed, readErr := bank.ReadButtons(ctx)
		if readErr != nil {
			continue
		}
		if count, changed := counter.observe(pressed); changed {
			if writeErr := bank.WriteLEDs(ctx, count); writeErr != nil {
				logger.Errorw("counter led write failed", "error", writeErr)
			}
			logger.Infow("counter", "count", count, "pressed", pressed)
		}
	}
}

// scriptButtons fakes a user on the loopback bank: a short press of button 0
// every second, a reset press of button 1 every twenty seconds.
func scriptButtons(g *sim.GPIO, tick int) {
	var btn0, btn1 byte
	if tick%50 == 0 {
		btn0 = 1
	}
	if tick%1000 == 0 {
		btn1 = 1
	}
	g.SetButtonLevels(btn0, btn1)
}

// runUARTEcho periodically transmits a greeting and logs whatever comes
// back. On the loopback backend the greeting itself returns.
func runUARTEcho(ctx context.Context, args Arguments) (err error) {
	cfg := buses.UARTConfig{DevName: args.UARTDev, BaudRate: 115200}
	var port buses.UART
	if args.Sim {
		cfg.DevName = "sim-tty-0"
		port, err = sim.NewUART(cfg, logger)
	} else {
		port, err = genericlinux.NewUART(cfg, logger)
	}
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, port.Close())
	}()
	logger.Infow("uart echo running", "dev", cfg.DevName, "baud", cfg.BaudRate)

	rx := make([]byte, 128)
	var tick int
	for {
		if !utils.SelectContextOrWait(ctx, time.Second) {
			return ctx.Err()
		}
		tick++

		msg := fmt.Sprintf("hello from busdemo tick=%d\r\n", tick)
		if _, writeErr := buses.WriteString(ctx, port, msg); writeErr != nil {
			logger.Errorw("uart write failed", "error", writeErr)
			continue
		}
		n, readErr := port.Read(ctx, rx)
		switch {
		case readErr != nil:
			logger.Errorw("uart read failed", "error", readErr)
		case n > 0:
			logger.Infow("uart received", "bytes", n, "data", string(rx[:n]))
		}
	}
}
