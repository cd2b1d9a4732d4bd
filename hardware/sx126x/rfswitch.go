package sx126x

import (
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

const (
	RFSwitchBasic         = "basic"
	RFSwitchDualEnablePin = "dual-enable-pin"
)

// RFSwitch selects antenna path for receive.
// basic: module routes antenna itself, driven by DIO2.
// dual-enable-pin: host drives separate TXEN and RXEN lines.
type RFSwitch interface {
	String() string
	Init(d *Device) error
	Receive(d *Device) error
	Idle(d *Device) error
}

func NewRFSwitch(kind string, hw *hardware) (RFSwitch, error) {
	switch kind {
	case "", RFSwitchBasic:
		return basicSwitch{}, nil
	case RFSwitchDualEnablePin:
		if !hw.lines.hasTxEn || !hw.lines.hasRxEn {
			return nil, errors.NotValidf("rf_switch=%s requires pin_txen and pin_rxen", kind)
		}
		return &dualPinSwitch{
			txen:  hw.outputs.SetFunc(hw.lines.txen),
			rxen:  hw.outputs.SetFunc(hw.lines.rxen),
			flush: hw.outputs.Flush,
		}, nil
	}
	return nil, errors.NotValidf("rf_switch=%s", kind)
}

type basicSwitch struct{}

func (basicSwitch) String() string { return RFSwitchBasic }
func (basicSwitch) Init(d *Device) error {
	return d.Command(OpSetDio2AsRfSwitchCtrl, 0x01)
}
func (basicSwitch) Receive(*Device) error { return nil }
func (basicSwitch) Idle(*Device) error    { return nil }

type dualPinSwitch struct {
	txen  gpio.LineSetFunc
	rxen  gpio.LineSetFunc
	flush func() error
}

func (*dualPinSwitch) String() string { return RFSwitchDualEnablePin }
func (s *dualPinSwitch) Init(d *Device) error {
	return s.Idle(d)
}
func (s *dualPinSwitch) Receive(*Device) error {
	s.txen(0)
	s.rxen(1)
	return errors.Annotate(s.flush(), "rf switch receive")
}
func (s *dualPinSwitch) Idle(*Device) error {
	s.txen(0)
	s.rxen(0)
	return errors.Annotate(s.flush(), "rf switch idle")
}
