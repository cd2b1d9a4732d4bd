package radio

import (
	"sync"
	"time"
)

// MockPacket is one scripted reception for Mock.
type MockPacket struct {
	Data   []byte
	RSSI   float32
	SNR    float32
	Status Status
}

// Mock is scripted Receiver for tests. Packets are delivered in order,
// after the last one Available() stays 0.
type Mock struct {
	mu      sync.Mutex
	packets []MockPacket
	current MockPacket
	pos     int

	counts MockCounts

	// OnExhausted is called once, in new goroutine, when scripted packets run out.
	OnExhausted func()
}

type MockCounts struct {
	Reads  int
	RSSI   int
	SNR    int
	Status int
	Wait   int
}

func (m *Mock) Counts() MockCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}

func NewMock(packets ...MockPacket) *Mock {
	return &Mock{packets: packets}
}

func (m *Mock) Push(p MockPacket) {
	m.mu.Lock()
	m.packets = append(m.packets, p)
	m.mu.Unlock()
}

func (m *Mock) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos < len(m.current.Data) {
		return len(m.current.Data) - m.pos
	}
	if m.current.Data != nil {
		m.current.Data = nil
		return 0
	}
	if len(m.packets) == 0 {
		if m.OnExhausted != nil {
			f := m.OnExhausted
			m.OnExhausted = nil
			go f()
		}
		return 0
	}
	m.current, m.packets = m.packets[0], m.packets[1:]
	m.pos = 0
	return len(m.current.Data)
}

func (m *Mock) Read() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts.Reads++
	if m.pos >= len(m.current.Data) {
		panic("code error radio.Mock Read() without Available()")
	}
	b := m.current.Data[m.pos]
	m.pos++
	return b
}

func (m *Mock) PacketRSSI() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts.RSSI++
	return m.current.RSSI
}

func (m *Mock) SNR() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts.SNR++
	return m.current.SNR
}

func (m *Mock) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts.Status++
	return m.current.Status
}

func (m *Mock) WaitIRQ(timeout time.Duration) error {
	m.mu.Lock()
	m.counts.Wait++
	m.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil
}

var _ Receiver = &Mock{}
var _ Waiter = &Mock{}
