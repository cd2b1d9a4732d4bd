// Package radio declares what the receive loop needs from a LoRa transceiver.
// Drivers live in sibling packages, e.g. hardware/sx126x.
package radio

import (
	"fmt"
	"time"
)

type Status uint8

const (
	StatusOK Status = iota
	StatusCRCError
	StatusHeaderError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCRCError:
		return "crc-error"
	case StatusHeaderError:
		return "header-error"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Receiver contract:
//   - Available() reports unread bytes of the packet in flight, 0 if none;
//     fully read packet reports 0 once before driver looks for the next one,
//     so bytes of two packets never merge
//   - Read() consumes one byte, only valid while Available() > 0
//   - signal quality and Status describe the last received packet
//   - single owner, not safe for concurrent use
type Receiver interface {
	Available() int
	Read() byte
	PacketRSSI() float32
	SNR() float32
	Status() Status
}

// Waiter is optional Receiver extension to sleep until radio signals something,
// instead of polling Available() in a busy loop.
// Timeout is not an error.
type Waiter interface {
	WaitIRQ(timeout time.Duration) error
}
