// Package sx126x drives Semtech SX1261/SX1262/SX1268 LoRa transceivers
// over Linux spidev and GPIO character device. Receive path only.
package sx126x

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/lorarelay/hardware/radio"
	"github.com/temoto/lorarelay/helpers"
	"github.com/temoto/lorarelay/log2"
)

const modName string = "sx126x"
const DefaultBusyTimeout = 100 * time.Millisecond

const maxPayload = 255

type Device struct {
	Log *log2.Log

	hw          hardware
	sw          RFSwitch
	busyTimeout time.Duration
	params      Params

	payload    [maxPayload]byte
	length     int
	pos        int
	rssi       float32
	snr        float32
	signalRssi float32
	status     radio.Status

	stat Stat
	err  error
}

type Stat struct {
	Packets      uint32
	CrcErrors    uint32
	HeaderErrors uint32
	SpiErrors    uint32
	Empty        uint32 // RxDone with zero payload length, included in Packets
}

// Open claims SPI and GPIO lines, resets chip and waits until it is ready for commands.
func Open(c *Config, log *log2.Log) (*Device, error) {
	self := &Device{
		Log:         log,
		busyTimeout: helpers.IntMillisecondDefault(c.BusyTimeoutMs, DefaultBusyTimeout),
	}
	if err := self.hw.open(c); err != nil {
		_ = self.hw.Close()
		return nil, errors.Annotate(err, modName)
	}
	var err error
	if self.sw, err = NewRFSwitch(c.RFSwitch, &self.hw); err != nil {
		_ = self.hw.Close()
		return nil, errors.Annotate(err, modName)
	}
	if err = self.Reset(); err != nil {
		_ = self.hw.Close()
		return nil, errors.Annotate(err, modName)
	}
	self.Log.Debugf("%s open rf_switch=%s irq_pin=%t", modName, self.sw.String(), self.hw.irq != nil)
	return self, nil
}

func (self *Device) Close() error {
	if self.sw != nil {
		_ = self.sw.Idle(self)
	}
	if err := self.Command(OpSetSleep, 0x00); err != nil {
		self.Log.Errorf("%s sleep err=%v", modName, err)
	}
	return self.hw.Close()
}

func (self *Device) Stat() Stat {
	return Stat{
		Packets:      atomic.LoadUint32(&self.stat.Packets),
		CrcErrors:    atomic.LoadUint32(&self.stat.CrcErrors),
		HeaderErrors: atomic.LoadUint32(&self.stat.HeaderErrors),
		SpiErrors:    atomic.LoadUint32(&self.stat.SpiErrors),
		Empty:        atomic.LoadUint32(&self.stat.Empty),
	}
}

// Err returns last SPI/GPIO error swallowed by Available().
func (self *Device) Err() error { return self.err }

func (self *Device) Reset() error {
	setReset := self.hw.outputs.SetFunc(self.hw.lines.reset)
	setReset(0)
	if err := self.hw.outputs.Flush(); err != nil {
		return errors.Annotate(err, "reset low")
	}
	time.Sleep(time.Millisecond)
	setReset(1)
	if err := self.hw.outputs.Flush(); err != nil {
		return errors.Annotate(err, "reset high")
	}
	return errors.Annotate(self.waitBusy(), "after reset")
}

func (self *Device) waitBusy() error {
	deadline := time.Now().Add(self.busyTimeout)
	for {
		data, err := self.hw.busy.Read()
		if err != nil {
			return errors.Annotate(err, "busy read")
		}
		if data.Values[0] == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Timeoutf("%s busy=high after %s", modName, self.busyTimeout)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func (self *Device) tx(buf []byte) error {
	if err := self.waitBusy(); err != nil {
		atomic.AddUint32(&self.stat.SpiErrors, 1)
		return err
	}
	if err := self.hw.spiTx(buf, buf); err != nil {
		atomic.AddUint32(&self.stat.SpiErrors, 1)
		return errors.Annotatef(err, "%s spi op=%02x", modName, buf[0])
	}
	return nil
}

// Command sends opcode with arguments, response is ignored.
func (self *Device) Command(op Opcode, args ...byte) error {
	buf := make([]byte, 1+len(args))
	buf[0] = byte(op)
	copy(buf[1:], args)
	return self.tx(buf)
}

// query sends opcode and returns n response bytes following the status byte.
func (self *Device) query(op Opcode, n int) ([]byte, error) {
	buf := make([]byte, 2+n)
	buf[0] = byte(op)
	if err := self.tx(buf); err != nil {
		return nil, err
	}
	return buf[2:], nil
}

func (self *Device) WriteRegister(addr uint16, data ...byte) error {
	args := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(args, addr)
	copy(args[2:], data)
	return self.Command(OpWriteRegister, args...)
}

func (self *Device) ReadRegister(addr uint16, n int) ([]byte, error) {
	buf := make([]byte, 4+n)
	buf[0] = byte(OpReadRegister)
	binary.BigEndian.PutUint16(buf[1:], addr)
	if err := self.tx(buf); err != nil {
		return nil, err
	}
	return buf[4:], nil
}

func (self *Device) readBuffer(offset byte, dst []byte) error {
	buf := make([]byte, 3+len(dst))
	buf[0] = byte(OpReadBuffer)
	buf[1] = offset
	if err := self.tx(buf); err != nil {
		return err
	}
	copy(dst, buf[3:])
	return nil
}

func (self *Device) IrqStatus() (Irq, error) {
	b, err := self.query(OpGetIrqStatus, 2)
	if err != nil {
		return 0, err
	}
	return Irq(binary.BigEndian.Uint16(b)), nil
}

func (self *Device) ClearIrq(mask Irq) error {
	return self.Command(OpClearIrqStatus, byte(mask>>8), byte(mask))
}

// Configure applies modem parameters. Chip is left in standby.
func (self *Device) Configure(p Params) error {
	if err := p.Validate(); err != nil {
		return errors.Annotate(err, "sx126x configure")
	}
	self.params = p
	rf, mod, pkt, sw := p.rfFrequency(), p.modulation(), p.packet(), p.syncWord()
	img := p.calibrateImage()
	irqMask := dioIrqParams(irqRxMask)

	type step struct {
		name string
		f    func() error
	}
	steps := []step{
		{"standby", func() error { return self.Command(OpSetStandby, standbyRC) }},
		{"packet type", func() error { return self.Command(OpSetPacketType, packetTypeLoRa) }},
		{"rf switch", func() error { return self.sw.Init(self) }},
	}
	if p.TcxoVoltage != 0 {
		tcxo := p.tcxo()
		steps = append(steps,
			step{"tcxo", func() error { return self.Command(OpSetDio3AsTcxoCtrl, tcxo[:]...) }},
			step{"calibrate", func() error { return self.Command(OpCalibrate, calibrateAll) }},
		)
	}
	steps = append(steps,
		step{"buffer base", func() error { return self.Command(OpSetBufferBaseAddress, 0x00, 0x00) }},
		step{"frequency", func() error { return self.Command(OpSetRfFrequency, rf[:]...) }},
		step{"calibrate image", func() error { return self.Command(OpCalibrateImage, img[:]...) }},
		step{"rx gain", func() error { return self.WriteRegister(RegRxGain, byte(p.RxGain)) }},
		step{"modulation", func() error { return self.Command(OpSetModulationParams, mod[:]...) }},
		step{"packet", func() error { return self.Command(OpSetPacketParams, pkt[:]...) }},
		step{"sync word", func() error { return self.WriteRegister(RegSyncWordMSB, sw[:]...) }},
		step{"irq", func() error { return self.Command(OpSetDioIrqParams, irqMask[:]...) }},
		step{"clear irq", func() error { return self.ClearIrq(IrqAll) }},
	)
	for _, s := range steps {
		if err := s.f(); err != nil {
			return errors.Annotatef(err, "sx126x configure %s", s.name)
		}
	}
	self.Log.Debugf("%s configured freq=%d sf=%d bw=%d cr=4/%d ldro=%t preamble=%d payload=%d crc=%t sync=%04x",
		modName, p.FrequencyHz, p.SpreadingFactor, p.BandwidthHz, p.CodingRate, p.LowDataRateOptimize(),
		p.PreambleLength, p.PayloadLength, p.CRC, p.SyncWord)
	return nil
}

// RequestContinuousReceive arms RX until commanded otherwise.
func (self *Device) RequestContinuousReceive() error {
	if err := self.sw.Receive(self); err != nil {
		return err
	}
	t := rxContinuous
	return errors.Annotate(self.Command(OpSetRx, byte(t>>16), byte(t>>8), byte(t)), "sx126x request rx")
}

// Available returns unread bytes of current packet.
// Fully read packet reports 0 once, only then chip is checked for next one.
// Hardware errors are logged and reported as 0, see Err().
func (self *Device) Available() int {
	if self.pos < self.length {
		return self.length - self.pos
	}
	if self.length != 0 {
		self.length, self.pos = 0, 0
		return 0
	}
	if err := self.poll(); err != nil {
		self.err = err
		self.Log.Errorf("%s poll err=%v", modName, err)
		return 0
	}
	return self.length - self.pos
}

func (self *Device) poll() error {
	irq, err := self.IrqStatus()
	if err != nil {
		return err
	}
	if irq&irqRxMask == 0 {
		return nil
	}
	if err = self.ClearIrq(irq); err != nil {
		return err
	}
	if irq&IrqRxDone == 0 {
		if irq&IrqHeaderErr != 0 {
			atomic.AddUint32(&self.stat.HeaderErrors, 1)
			self.Log.Debugf("%s header error without payload irq=%04x", modName, uint16(irq))
		}
		return nil
	}

	status := radio.StatusOK
	switch {
	case irq&IrqCrcErr != 0:
		status = radio.StatusCRCError
		atomic.AddUint32(&self.stat.CrcErrors, 1)
	case irq&IrqHeaderErr != 0:
		status = radio.StatusHeaderError
		atomic.AddUint32(&self.stat.HeaderErrors, 1)
	}

	bs, err := self.query(OpGetRxBufferStatus, 2)
	if err != nil {
		return err
	}
	length, start := int(bs[0]), bs[1]
	if length != 0 {
		if err = self.readBuffer(start, self.payload[:length]); err != nil {
			return err
		}
	}
	ps, err := self.query(OpGetPacketStatus, 3)
	if err != nil {
		return err
	}
	self.rssi = -float32(ps[0]) / 2
	self.snr = float32(int8(ps[1])) / 4
	self.signalRssi = -float32(ps[2]) / 2
	self.status = status
	self.length = length
	self.pos = 0
	atomic.AddUint32(&self.stat.Packets, 1)
	if length == 0 {
		// Available() stays 0, receive loop never sees this one
		atomic.AddUint32(&self.stat.Empty, 1)
		self.Log.Debugf("%s empty packet dropped RSSI = %.2f dBm | SNR = %.2f dB status=%s",
			modName, self.rssi, self.snr, status.String())
	}
	return nil
}

// dioIrqParams encodes SetDioIrqParams: global mask, DIO1 mask, DIO2 and DIO3 unused.
func dioIrqParams(mask Irq) [8]byte {
	hi, lo := byte(uint16(mask)>>8), byte(uint16(mask)&0xff)
	return [8]byte{hi, lo, hi, lo, 0, 0, 0, 0}
}

func (self *Device) Read() byte {
	if self.pos >= self.length {
		return 0
	}
	b := self.payload[self.pos]
	self.pos++
	return b
}

func (self *Device) PacketRSSI() float32  { return self.rssi }
func (self *Device) SNR() float32         { return self.snr }
func (self *Device) SignalRSSI() float32  { return self.signalRssi }
func (self *Device) Status() radio.Status { return self.status }

// WaitIRQ blocks until rising edge on IRQ line or timeout.
// Without IRQ line it just sleeps, Available() polls chip over SPI anyway.
func (self *Device) WaitIRQ(timeout time.Duration) error {
	if self.hw.irq == nil {
		time.Sleep(timeout)
		return nil
	}
	if level, err := self.hw.irq.Read(); err == nil && level != 0 {
		return nil
	}
	_, err := self.hw.irq.Wait(timeout)
	if gpio.IsTimeout(err) {
		return nil
	}
	return errors.Annotate(err, "sx126x irq wait")
}

var _ radio.Receiver = &Device{}
var _ radio.Waiter = &Device{}
