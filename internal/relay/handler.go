package relay

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/temoto/lorarelay/internal/metrics"
	"github.com/temoto/lorarelay/internal/telemetry"
	"github.com/temoto/lorarelay/log2"
)

// Dump prints packet as text: all bytes but the last as characters,
// then two spaces and the last byte as decimal counter.
type Dump struct {
	Out io.Writer
}

func (self *Dump) HandlePacket(ctx context.Context, p *Packet) {
	if len(p.Data) == 0 {
		return
	}
	_, _ = fmt.Fprintln(self.Out, FormatDump(p.Data))
}

func FormatDump(data []byte) string {
	n := len(data)
	if n == 0 {
		return ""
	}
	var sb strings.Builder
	for _, b := range data[:n-1] {
		sb.WriteRune(rune(b))
	}
	return fmt.Sprintf("%s  %d", sb.String(), data[n-1])
}

type Forwarder interface {
	Forward(ctx context.Context, f telemetry.Frame) error
}

// Telemetry decodes 44 byte sensor frames and forwards them.
// Anything else is skipped, network errors are logged and the frame is dropped.
type Telemetry struct {
	Log       *log2.Log
	Forwarder Forwarder
}

func (self *Telemetry) HandlePacket(ctx context.Context, p *Packet) {
	f, ok, err := telemetry.Decode(p.Tokens)
	if err != nil {
		metrics.FrameCounter(metrics.FrameBadToken).Inc()
		self.Log.Debugf("telemetry skip err=%v", err)
		return
	}
	if !ok {
		metrics.FrameCounter(metrics.FrameBadLength).Inc()
		self.Log.Debugf("telemetry skip length=%d expected=%d", len(p.Tokens), telemetry.FrameLength)
		return
	}
	metrics.FrameCounter(metrics.FrameOK).Inc()
	self.Log.Debugf("telemetry %s", f.String())
	if err = self.Forwarder.Forward(ctx, f); err != nil {
		self.Log.Errorf("telemetry forward err=%v", err)
	}
}
