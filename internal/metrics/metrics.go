// Package metrics exposes receive/forward counters for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/lorarelay/log2"
)

type Config struct {
	Bind string `hcl:"bind"` // empty disables HTTP endpoint
}

var (
	packets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lorarelay_packet_count",
		Help: "The number of received packets (per reception status).",
	}, []string{"status"})

	frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lorarelay_frame_count",
		Help: "The number of telemetry decode attempts (per result).",
	}, []string{"result"})

	sends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lorarelay_send_count",
		Help: "The number of forwarded payloads (per sink and result).",
	}, []string{"sink", "result"})

	spooled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lorarelay_spool_pending",
		Help: "Approximate number of payloads waiting in spool for redelivery.",
	})

	errorsLogged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lorarelay_error_count",
		Help: "The number of errors logged.",
	})
)

const (
	FrameOK        = "ok"
	FrameBadLength = "bad-length"
	FrameBadToken  = "bad-token"

	SendOK       = "ok"
	SendError    = "error"
	SendSpooled  = "spooled"
	SendRetryOK  = "retry-ok"
	SendRetryErr = "retry-error"
)

func PacketCounter(status string) prometheus.Counter {
	return packets.With(prometheus.Labels{"status": status})
}

func FrameCounter(result string) prometheus.Counter {
	return frames.With(prometheus.Labels{"result": result})
}

func SendCounter(sink, result string) prometheus.Counter {
	return sends.With(prometheus.Labels{"sink": sink, "result": result})
}

func SpoolGauge() prometheus.Gauge { return spooled }

// CountError fits log2.ErrorFunc.
func CountError(error) { errorsLogged.Inc() }

// Serve runs /metrics HTTP endpoint until ctx is done.
func Serve(ctx context.Context, c Config, log *log2.Log) error {
	if c.Bind == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Handler: mux,
		Addr:    c.Bind,
	}
	log.Infof("metrics: starting prometheus metrics server bind=%s", c.Bind)

	errch := make(chan error, 1)
	go func() { errch <- server.ListenAndServe() }()
	select {
	case err := <-errch:
		return errors.Annotatef(err, "metrics listen bind=%s", c.Bind)
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return errors.Annotate(server.Shutdown(shutCtx), "metrics shutdown")
}
