package relay

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/lorarelay/hardware/radio"
	"github.com/temoto/lorarelay/internal/forward"
	"github.com/temoto/lorarelay/internal/telemetry"
	"github.com/temoto/lorarelay/log2"
)

type recordSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *recordSender) String() string { return "record" }
func (s *recordSender) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, string(payload))
	return nil
}
func (s *recordSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func runLoop(t *testing.T, r *radio.Mock, h Handler) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.OnExhausted = cancel
	loop := &Loop{Log: log2.NewTest(t, log2.LDebug), Radio: r, Handler: h, IdleWait: time.Millisecond}
	require.NoError(t, loop.Run(ctx))
	require.NotEqual(t, context.DeadlineExceeded, ctx.Err(), "loop did not consume all packets")
}

func TestReassemble(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		data   []byte
		line   string
		tokens []string
	}{
		{"one", []byte{7}, "7 ", []string{"7"}},
		{"three", []byte{0, 128, 255}, "0 128 255 ", []string{"0", "128", "255"}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			r := radio.NewMock(radio.MockPacket{Data: c.data})
			line, data := Drain(r)
			assert.Equal(t, c.line, line)
			assert.Equal(t, c.data, data)
			assert.Equal(t, c.tokens, Tokens(line))
		})
	}
	assert.Empty(t, Tokens(""))
}

func TestDrainKeepsPacketBoundary(t *testing.T) {
	t.Parallel()
	r := radio.NewMock(radio.MockPacket{Data: []byte{1, 2}}, radio.MockPacket{Data: []byte{3}})
	line, _ := Drain(r)
	assert.Equal(t, "1 2 ", line)
	line, _ = Drain(r)
	assert.Equal(t, "3 ", line)
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()
	frame := telemetry.Encode(telemetry.Frame{Counter: 42, AccX: 1.5})
	r := radio.NewMock(radio.MockPacket{Data: frame[:], RSSI: -50.5, SNR: 9.25})

	sender := &recordSender{}
	log := log2.NewTest(t, log2.LDebug)
	fwd, err := forward.NewWithSender(forward.Config{}, log, sender)
	require.NoError(t, err)
	runLoop(t, r, &Telemetry{Log: log, Forwarder: fwd})

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Counter: 42")
	assert.Contains(t, sent[0], "AccX: 1.5")
}

func TestSkipAndDiagnostics(t *testing.T) {
	t.Parallel()
	valid := telemetry.Encode(telemetry.Frame{Counter: 1})
	r := radio.NewMock(
		radio.MockPacket{Data: []byte("short")},
		radio.MockPacket{Data: valid[:], Status: radio.StatusCRCError},
		radio.MockPacket{Data: make([]byte, 45), Status: radio.StatusHeaderError},
		radio.MockPacket{Data: valid[:43]},
	)
	sender := &recordSender{}
	log := log2.NewTest(t, log2.LDebug)
	fwd, err := forward.NewWithSender(forward.Config{}, log, sender)
	require.NoError(t, err)
	runLoop(t, r, &Telemetry{Log: log, Forwarder: fwd})

	// CRC error packet is still decoded and forwarded
	require.Len(t, sender.Sent(), 1)
	assert.True(t, strings.HasPrefix(sender.Sent()[0], "Counter: 1, AccX: 0"))
	counts := r.Counts()
	assert.Equal(t, 4, counts.RSSI)
	assert.Equal(t, 4, counts.SNR)
	assert.Equal(t, 4, counts.Status)
	assert.Equal(t, 5+44+45+43, counts.Reads)
}

func TestForwardFailureContinues(t *testing.T) {
	t.Parallel()
	a := telemetry.Encode(telemetry.Frame{Counter: 1})
	b := telemetry.Encode(telemetry.Frame{Counter: 2})
	r := radio.NewMock(radio.MockPacket{Data: a[:]}, radio.MockPacket{Data: b[:]})
	sender := &recordSender{err: errors.New("connection refused")}
	log := log2.NewTest(t, log2.LDebug)
	fwd, err := forward.NewWithSender(forward.Config{}, log, sender)
	require.NoError(t, err)

	var errs []error
	log.SetErrorFunc(func(e error) { errs = append(errs, e) })
	runLoop(t, r, &Telemetry{Log: log, Forwarder: fwd})
	assert.Len(t, errs, 2)
	assert.Empty(t, sender.Sent())
}

func TestDump(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	var mu sync.Mutex
	h := HandlerFunc(func(ctx context.Context, p *Packet) {
		mu.Lock()
		defer mu.Unlock()
		(&Dump{Out: &buf}).HandlePacket(ctx, p)
	})
	r := radio.NewMock(
		radio.MockPacket{Data: append([]byte("Hello"), 7)},
		radio.MockPacket{Data: []byte{200}},
	)
	runLoop(t, r, h)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Hello  7\n  200\n", buf.String())
	assert.Equal(t, "é  1", FormatDump([]byte{0xe9, 1}))
}
