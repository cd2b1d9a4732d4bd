package sx126x

import (
	"strconv"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/lorarelay/helpers"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

const consumerLabel = "lorarelay"

const DefaultSpiSpeed = 2 * physic.MegaHertz

type Config struct {
	SpiBus   string `hcl:"spi"`
	SpiMode  int    `hcl:"spi_mode"`
	SpiSpeed string `hcl:"spi_speed"`
	PinChip  string `hcl:"pin_chip"`
	PinReset string `hcl:"pin_reset"`
	PinBusy  string `hcl:"pin_busy"`
	PinIrq   string `hcl:"pin_irq"` // empty: poll IRQ status over SPI
	PinTxEn  string `hcl:"pin_txen"`
	PinRxEn  string `hcl:"pin_rxen"`
	RFSwitch string `hcl:"rf_switch"` // basic | dual-enable-pin
	LogDebug bool   `hcl:"log_debug"`

	BusyTimeoutMs int `hcl:"busy_timeout_ms"`

	testhw *hardware
}

type hardware struct {
	spiTx   SpiTxFunc    // used
	outputs gpio.Lineser // used: reset, optional txen, rxen
	busy    gpio.Lineser // used
	irq     gpio.Eventer // used, may be nil

	spiPort  spi.PortCloser // only for resource cleanup
	gpioChip gpio.Chiper    // only for resource cleanup

	lines pinLines
}
type SpiTxFunc func(send, recv []byte) error

type pinLines struct {
	reset, busy, irq, txen, rxen uint32
	hasIrq, hasTxEn, hasRxEn     bool
}

func parseLine(name, value string, required bool) (uint32, bool, error) {
	if value == "" {
		if required {
			return 0, false, errors.NotValidf("pin %s is required", name)
		}
		return 0, false, nil
	}
	x, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return 0, false, errors.Annotatef(err, "pin %s=%s must be line number", name, value)
	}
	return uint32(x), true, nil
}

func (c *Config) pinLines() (pinLines, error) {
	var pl pinLines
	var err error
	if pl.reset, _, err = parseLine("reset", c.PinReset, true); err != nil {
		return pl, err
	}
	if pl.busy, _, err = parseLine("busy", c.PinBusy, true); err != nil {
		return pl, err
	}
	if pl.irq, pl.hasIrq, err = parseLine("irq", c.PinIrq, false); err != nil {
		return pl, err
	}
	if pl.txen, pl.hasTxEn, err = parseLine("txen", c.PinTxEn, false); err != nil {
		return pl, err
	}
	if pl.rxen, pl.hasRxEn, err = parseLine("rxen", c.PinRxEn, false); err != nil {
		return pl, err
	}
	return pl, nil
}

// Converts strings to useful hardware talking functions.
func (h *hardware) open(c *Config) error {
	lines, err := c.pinLines()
	if err != nil {
		return err
	}

	if c.testhw != nil {
		*h = *c.testhw
		h.lines = lines
		return nil
	}
	h.lines = lines

	if _, err = host.Init(); err != nil {
		return errors.Annotate(err, "periph/init")
	}

	h.spiPort, err = spireg.Open(c.SpiBus)
	if err != nil {
		return errors.Annotatef(err, "SPI Open bus=%s", c.SpiBus)
	}
	spiSpeed := DefaultSpiSpeed
	if c.SpiSpeed != "" {
		if err = spiSpeed.Set(c.SpiSpeed); err != nil {
			return errors.Annotate(err, "SPI speed parse")
		}
	}
	var spiConn spi.Conn
	spiConn, err = h.spiPort.Connect(spiSpeed, spi.Mode(c.SpiMode), 8)
	if err != nil {
		return errors.Annotate(err, "SPI Connect")
	}
	h.spiTx = spiConn.Tx

	h.gpioChip, err = gpio.Open(c.PinChip, consumerLabel)
	if err != nil {
		return errors.Annotatef(err, "gpio open chip=%s", c.PinChip)
	}
	outLines := []uint32{lines.reset}
	if lines.hasTxEn {
		outLines = append(outLines, lines.txen)
	}
	if lines.hasRxEn {
		outLines = append(outLines, lines.rxen)
	}
	h.outputs, err = h.gpioChip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, outLines...)
	if err != nil {
		return errors.Annotatef(err, "gpio output lines=%v", outLines)
	}
	h.busy, err = h.gpioChip.OpenLines(gpio.GPIOHANDLE_REQUEST_INPUT, consumerLabel, lines.busy)
	if err != nil {
		return errors.Annotatef(err, "gpio busy line=%d", lines.busy)
	}
	if lines.hasIrq {
		h.irq, err = h.gpioChip.GetLineEvent(lines.irq, 0, gpio.GPIOEVENT_REQUEST_RISING_EDGE, consumerLabel)
		if err != nil {
			return errors.Annotatef(err, "gpio irq line=%d", lines.irq)
		}
	}
	return nil
}

func (h *hardware) Close() error {
	return helpers.CloseAll(h.irq, h.busy, h.outputs, h.spiPort, h.gpioChip)
}
