// Package relay runs the receive loop: wait for packet, drain it,
// report signal quality, pass to handler.
package relay

import (
	"context"
	"time"

	"github.com/temoto/lorarelay/hardware/radio"
	"github.com/temoto/lorarelay/internal/metrics"
	"github.com/temoto/lorarelay/log2"
)

const DefaultIdleWait = 50 * time.Millisecond

// Packet is one drained reception, valid for single handler call.
type Packet struct {
	Line   string
	Tokens []string
	Data   []byte
	RSSI   float32
	SNR    float32
	Status radio.Status
}

type Handler interface {
	HandlePacket(ctx context.Context, p *Packet)
}

type HandlerFunc func(ctx context.Context, p *Packet)

func (f HandlerFunc) HandlePacket(ctx context.Context, p *Packet) { f(ctx, p) }

// Loop owns the radio exclusively, one packet at a time in arrival order.
type Loop struct {
	Log      *log2.Log
	Radio    radio.Receiver
	Handler  Handler
	IdleWait time.Duration
}

// Run returns nil when ctx is cancelled. Cancellation is checked between cycles.
func (self *Loop) Run(ctx context.Context) error {
	waiter, _ := self.Radio.(radio.Waiter)
	idle := self.IdleWait
	if idle <= 0 {
		idle = DefaultIdleWait
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if self.Radio.Available() == 0 {
			self.idle(ctx, waiter, idle)
			continue
		}
		self.Handler.HandlePacket(ctx, self.Receive())
	}
}

// Receive drains current packet and queries its diagnostics exactly once.
// Caller must check Available() > 0 first.
func (self *Loop) Receive() *Packet {
	p := &Packet{}
	p.Line, p.Data = Drain(self.Radio)
	p.Tokens = Tokens(p.Line)
	p.RSSI = self.Radio.PacketRSSI()
	p.SNR = self.Radio.SNR()
	p.Status = self.Radio.Status()

	metrics.PacketCounter(p.Status.String()).Inc()
	self.Log.Infof("Packet status: RSSI = %.2f dBm | SNR = %.2f dB", p.RSSI, p.SNR)
	switch p.Status {
	case radio.StatusCRCError:
		self.Log.Infof("CRC error")
	case radio.StatusHeaderError:
		self.Log.Infof("Packet header error")
	}
	return p
}

func (self *Loop) idle(ctx context.Context, waiter radio.Waiter, d time.Duration) {
	if waiter != nil {
		err := waiter.WaitIRQ(d)
		if err == nil {
			return
		}
		self.Log.Errorf("relay wait irq err=%v", err)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
