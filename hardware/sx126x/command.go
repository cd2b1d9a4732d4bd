package sx126x

import (
	"time"

	"github.com/juju/errors"
)

type Opcode byte

const (
	OpSetSleep              Opcode = 0x84
	OpSetStandby            Opcode = 0x80
	OpSetRx                 Opcode = 0x82
	OpSetPacketType         Opcode = 0x8a
	OpSetRfFrequency        Opcode = 0x86
	OpSetModulationParams   Opcode = 0x8b
	OpSetPacketParams       Opcode = 0x8c
	OpSetBufferBaseAddress  Opcode = 0x8f
	OpSetDioIrqParams       Opcode = 0x08
	OpGetIrqStatus          Opcode = 0x12
	OpClearIrqStatus        Opcode = 0x02
	OpSetDio2AsRfSwitchCtrl Opcode = 0x9d
	OpSetDio3AsTcxoCtrl     Opcode = 0x97
	OpCalibrate             Opcode = 0x89
	OpCalibrateImage        Opcode = 0x98
	OpWriteRegister         Opcode = 0x0d
	OpReadRegister          Opcode = 0x1d
	OpReadBuffer            Opcode = 0x1e
	OpGetStatus             Opcode = 0xc0
	OpGetRxBufferStatus     Opcode = 0x13
	OpGetPacketStatus       Opcode = 0x14
	OpGetDeviceErrors       Opcode = 0x17
	OpClearDeviceErrors     Opcode = 0x07
)

const (
	RegSyncWordMSB uint16 = 0x0740
	RegRxGain      uint16 = 0x08ac
)

const (
	standbyRC      byte = 0x00
	packetTypeLoRa byte = 0x01
	calibrateAll   byte = 0x7f
	// SetRx timeout value meaning "stay in RX until commanded otherwise"
	rxContinuous uint32 = 0xffffff
)

type Irq uint16

const (
	IrqTxDone           Irq = 1 << 0
	IrqRxDone           Irq = 1 << 1
	IrqPreambleDetected Irq = 1 << 2
	IrqSyncWordValid    Irq = 1 << 3
	IrqHeaderValid      Irq = 1 << 4
	IrqHeaderErr        Irq = 1 << 5
	IrqCrcErr           Irq = 1 << 6
	IrqCadDone          Irq = 1 << 7
	IrqCadDetected      Irq = 1 << 8
	IrqTimeout          Irq = 1 << 9
	IrqAll              Irq = 0x03ff

	irqRxMask = IrqRxDone | IrqHeaderErr | IrqCrcErr | IrqTimeout
)

type HeaderType byte

const (
	HeaderExplicit HeaderType = 0x00
	HeaderImplicit HeaderType = 0x01
)

type RxGain byte

const (
	RxGainPowerSaving RxGain = 0x94
	RxGainBoosted     RxGain = 0x96
)

// Params is one-time LoRa modem configuration.
type Params struct {
	FrequencyHz     uint32
	SpreadingFactor uint8  // 5..12
	BandwidthHz     uint32 // one of bandwidthCodes keys
	CodingRate      uint8  // denominator of 4/x, 5..8
	HeaderType      HeaderType
	PreambleLength  uint16
	PayloadLength   uint8
	CRC             bool
	InvertIQ        bool
	SyncWord        uint16
	RxGain          RxGain
	// TCXO supply via DIO3, zero voltage disables
	TcxoVoltage float32
	TcxoDelay   time.Duration
}

var bandwidthCodes = map[uint32]byte{
	7800:   0x00,
	10400:  0x08,
	15600:  0x01,
	20800:  0x09,
	31250:  0x02,
	41700:  0x0a,
	62500:  0x03,
	125000: 0x04,
	250000: 0x05,
	500000: 0x06,
}

var tcxoVoltageCodes = map[float32]byte{
	1.6: 0x00,
	1.7: 0x01,
	1.8: 0x02,
	2.2: 0x03,
	2.4: 0x04,
	2.7: 0x05,
	3.0: 0x06,
	3.3: 0x07,
}

func (p *Params) Validate() error {
	if p.SpreadingFactor < 5 || p.SpreadingFactor > 12 {
		return errors.NotValidf("spreading factor=%d", p.SpreadingFactor)
	}
	if _, ok := bandwidthCodes[p.BandwidthHz]; !ok {
		return errors.NotValidf("bandwidth=%d", p.BandwidthHz)
	}
	if p.CodingRate < 5 || p.CodingRate > 8 {
		return errors.NotValidf("coding rate=4/%d", p.CodingRate)
	}
	if p.FrequencyHz < 150e6 || p.FrequencyHz > 960e6 {
		return errors.NotValidf("frequency=%d", p.FrequencyHz)
	}
	if p.TcxoVoltage != 0 {
		if _, ok := tcxoVoltageCodes[p.TcxoVoltage]; !ok {
			return errors.NotValidf("tcxo voltage=%.1f", p.TcxoVoltage)
		}
	}
	switch p.RxGain {
	case RxGainPowerSaving, RxGainBoosted:
	default:
		return errors.NotValidf("rx gain=%02x", byte(p.RxGain))
	}
	return nil
}

// LowDataRateOptimize is mandated when symbol time exceeds 16ms.
func (p *Params) LowDataRateOptimize() bool {
	symbol := time.Duration(1<<p.SpreadingFactor) * time.Second / time.Duration(p.BandwidthHz)
	return symbol > 16*time.Millisecond
}

func (p *Params) rfFrequency() [4]byte {
	rf := uint32((uint64(p.FrequencyHz) << 25) / 32000000)
	return [4]byte{byte(rf >> 24), byte(rf >> 16), byte(rf >> 8), byte(rf)}
}

func (p *Params) modulation() [4]byte {
	var ldro byte
	if p.LowDataRateOptimize() {
		ldro = 1
	}
	return [4]byte{p.SpreadingFactor, bandwidthCodes[p.BandwidthHz], p.CodingRate - 4, ldro}
}

func (p *Params) packet() [6]byte {
	return [6]byte{
		byte(p.PreambleLength >> 8), byte(p.PreambleLength),
		byte(p.HeaderType),
		p.PayloadLength,
		b2u8(p.CRC),
		b2u8(p.InvertIQ),
	}
}

// 1-byte sync words are expanded to 2 register bytes, compatible with SX127x networks.
func (p *Params) syncWord() [2]byte {
	sw := p.SyncWord
	if sw <= 0xff {
		return [2]byte{byte(sw&0xf0) | 0x04, byte(sw&0x0f)<<4 | 0x04}
	}
	return [2]byte{byte(sw >> 8), byte(sw)}
}

// delay unit is 15.625us
func (p *Params) tcxo() [4]byte {
	steps := uint32(p.TcxoDelay * 64 / time.Millisecond)
	return [4]byte{tcxoVoltageCodes[p.TcxoVoltage], byte(steps >> 16), byte(steps >> 8), byte(steps)}
}

func (p *Params) calibrateImage() [2]byte {
	f := p.FrequencyHz
	switch {
	case f > 900e6:
		return [2]byte{0xe1, 0xe9}
	case f > 850e6:
		return [2]byte{0xd7, 0xdb}
	case f > 770e6:
		return [2]byte{0xc1, 0xc5}
	case f > 460e6:
		return [2]byte{0x75, 0x81}
	default:
		return [2]byte{0x6b, 0x6f}
	}
}

func b2u8(b bool) byte {
	if b {
		return 1
	}
	return 0
}
