package state

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/lorarelay/hardware/radio"
	"github.com/temoto/lorarelay/hardware/sx126x"
)

// Radio is what sub-commands need from configured transceiver.
// Tests may preset Hardware.Radio.Dev before first Radio() call.
type Radio interface {
	radio.Receiver
	Configure(sx126x.Params) error
	RequestContinuousReceive() error
	Close() error
}

type hardware struct {
	Radio struct {
		once
		Dev Radio
	}
}

// Radio opens, configures and starts continuous receive on first call.
func (g *Global) Radio() (Radio, error) {
	x := &g.Hardware.Radio // short alias
	_ = x.do(func() error {
		params, err := g.Config.Radio.Params()
		if err != nil {
			return errors.Annotate(err, "radio config")
		}
		if x.Dev == nil {
			dev, err := sx126x.Open(&g.Config.Hardware.Sx126x, g.Log)
			if err != nil {
				return errors.Annotatef(err, "sx126x config=%+v", g.Config.Hardware.Sx126x)
			}
			x.Dev = dev
		}
		if err = x.Dev.Configure(params); err != nil {
			return errors.Annotate(err, "radio configure")
		}
		if err = x.Dev.RequestContinuousReceive(); err != nil {
			return errors.Annotate(err, "radio receive")
		}
		g.Log.Debugf("radio ready params=%+v", params)
		return nil
	})
	return x.Dev, x.err
}

// CloseRadio puts radio to sleep if it was opened.
func (g *Global) CloseRadio() error {
	x := &g.Hardware.Radio
	if !x.done() || x.Dev == nil {
		return nil
	}
	return errors.Annotate(x.Dev.Close(), "radio close")
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
