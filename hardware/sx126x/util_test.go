package sx126x

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	gpio "github.com/temoto/gpio-cdev-go"
	gpio_mock "github.com/temoto/gpio-cdev-go/mock"
	"github.com/temoto/lorarelay/helpers"
	"github.com/temoto/lorarelay/log2"
)

// Helpers for testing sx126x package

type tenv struct {
	t       testing.TB
	log     *log2.Log
	config  Config
	outputs *gpio_mock.MockLines
	busy    *gpio_mock.MockLines
	spiMock *spiMock

	mu   sync.Mutex
	pins map[uint32]byte
}

func testEnv(t *testing.T) *tenv {
	env := &tenv{
		t:       t,
		log:     log2.NewTest(t, log2.LDebug),
		outputs: &gpio_mock.MockLines{},
		busy:    &gpio_mock.MockLines{},
		spiMock: newSpiMock(t),
		pins:    make(map[uint32]byte),
	}
	for _, line := range []uint32{22, 24, 25} {
		line := line
		env.outputs.On("SetFunc", line).Return(gpio.LineSetFunc(func(v byte) {
			env.mu.Lock()
			env.pins[line] = v
			env.mu.Unlock()
		})).Maybe()
	}
	env.outputs.On("Flush").Return(nil)
	env.outputs.On("Close").Return(nil)
	env.busy.On("Read").Return(gpio.HandleData{}, nil)
	env.busy.On("Close").Return(nil)

	env.config = Config{
		PinReset: "22",
		PinBusy:  "23",
		testhw: &hardware{
			spiTx:   env.spiMock.Tx,
			outputs: env.outputs,
			busy:    env.busy,
		},
	}
	return env
}

func (env *tenv) pin(line uint32) byte {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.pins[line]
}

func (env *tenv) open() *Device {
	d, err := Open(&env.config, env.log)
	if err != nil {
		env.t.Fatal(err)
	}
	return d
}

func (env *tenv) close(d *Device) {
	env.spiMock.PushOk("8400", "0000")
	assert.NoError(env.t, d.Close())
	env.spiMock.ExpectEnd()
}

type spiTxCall struct {
	s []byte
	r []byte
	e error
}
type spiMock struct {
	assert  *assert.Assertions
	t       testing.TB
	mu      sync.Mutex
	expects []spiTxCall
	index   int
}

func newSpiMock(t testing.TB) *spiMock {
	return &spiMock{
		expects: make([]spiTxCall, 0, 64),
		t:       t,
		assert:  assert.New(t),
	}
}

func (m *spiMock) Tx(send, recv []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index >= len(m.expects) {
		msg := "premature end of spiMock.expects"
		m.t.Error(msg)
		panic(msg)
	}
	call := m.expects[m.index]
	m.assert.Equal(call.s, send)
	copy(recv, call.r)
	m.index++
	return call.e
}

func (m *spiMock) Push(call spiTxCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expects = append(m.expects, call)
}

// PushOk expects exact send bytes and replies with recv, spaces are ignored.
func (m *spiMock) PushOk(sendHex, recvHex string) {
	m.Push(spiTxCall{s: helpers.MustHex(sendHex), r: helpers.MustHex(recvHex)})
}

// PushCommand expects command without meaningful response.
func (m *spiMock) PushCommand(sendHex string) {
	s := helpers.MustHex(sendHex)
	m.Push(spiTxCall{s: s, r: make([]byte, len(s))})
}

func (m *spiMock) ExpectEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assert.Equal(len(m.expects), m.index, "unused spiMock.expects")
}

func mockEvent(level byte, waitErr error) *gpio_mock.MockEvent {
	m := &gpio_mock.MockEvent{}
	m.On("Close").Return(nil)
	m.On("Read").Return(level, nil)
	m.On("Wait", mock.AnythingOfType("time.Duration")).Return(gpio.EventData{}, waitErr)
	return m
}
