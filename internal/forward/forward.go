// Package forward delivers decoded telemetry to a remote endpoint.
//
// Forwarder contract:
// - one outbound connection per message, closed before Forward() returns
// - Forward() blocks at most for timeout_sec
// - network failure is returned to caller, frame is dropped
//   unless spool is configured, then payload is persisted and redelivered in background
// - spooled payloads are delivered at least once, possibly out of order
package forward

import (
	"context"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/lorarelay/helpers"
	"github.com/temoto/lorarelay/internal/metrics"
	"github.com/temoto/lorarelay/internal/telemetry"
	"github.com/temoto/lorarelay/log2"
)

const (
	SinkWebsocket = "ws"
	SinkMqtt      = "mqtt"

	FormatText = "text"
	FormatJSON = "json"

	DefaultURL       = "ws://127.0.0.1:8765"
	DefaultTimeout   = 5 * time.Second
	DefaultMqttTopic = "lorarelay/telemetry"
)

type Config struct {
	Sink       string `hcl:"sink"`
	URL        string `hcl:"url"`
	Format     string `hcl:"format"`
	TimeoutSec int    `hcl:"timeout_sec"`

	MqttBroker   string `hcl:"mqtt_broker"`
	MqttTopic    string `hcl:"mqtt_topic"`
	MqttClientId string `hcl:"mqtt_client_id"`
	MqttUsername string `hcl:"mqtt_username"`
	MqttPassword string `hcl:"mqtt_password"`
	MqttQos      int    `hcl:"mqtt_qos"`

	SpoolPath   string `hcl:"spool_path"`
	RetryMinSec int    `hcl:"retry_min_sec"`
	RetryMaxSec int    `hcl:"retry_max_sec"`

	LogDebug bool `hcl:"log_debug"`
}

// Sender transmits one payload over fresh connection.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
	String() string
}

type Forwarder struct {
	log     *log2.Log
	sender  Sender
	format  string
	timeout time.Duration
	spool   *spool
}

func New(c Config, log *log2.Log) (*Forwarder, error) {
	sender, err := NewSender(c, log)
	if err != nil {
		return nil, err
	}
	return NewWithSender(c, log, sender)
}

// NewWithSender is used by tests and alternative transports.
func NewWithSender(c Config, log *log2.Log, sender Sender) (*Forwarder, error) {
	if c.LogDebug {
		log = log.Clone(log2.LDebug)
	}
	self := &Forwarder{
		log:     log,
		sender:  sender,
		format:  strings.ToLower(c.Format),
		timeout: helpers.IntSecondDefault(c.TimeoutSec, DefaultTimeout),
	}
	switch self.format {
	case "":
		self.format = FormatText
	case FormatText, FormatJSON:
	default:
		return nil, errors.NotValidf("forward format=%s", c.Format)
	}
	if c.SpoolPath != "" {
		b := helpers.Backoff{
			Min: helpers.IntSecondDefault(c.RetryMinSec, time.Second),
			Max: helpers.IntSecondDefault(c.RetryMaxSec, 5*time.Minute),
			K:   2,
			Res: time.Second,
		}
		var err error
		if self.spool, err = openSpool(c.SpoolPath, log, b, self.sendTimeout); err != nil {
			return nil, errors.Annotate(err, "forward spool")
		}
	}
	return self, nil
}

func NewSender(c Config, log *log2.Log) (Sender, error) {
	timeout := helpers.IntSecondDefault(c.TimeoutSec, DefaultTimeout)
	switch c.Sink {
	case "", SinkWebsocket:
		url := c.URL
		if url == "" {
			url = DefaultURL
		}
		return NewWebsocket(url, timeout)
	case SinkMqtt:
		return NewMqtt(c, timeout, log)
	}
	return nil, errors.NotValidf("forward sink=%s", c.Sink)
}

func (self *Forwarder) String() string { return self.sender.String() + "/" + self.format }

// Payload renders frame in configured format.
func (self *Forwarder) Payload(f telemetry.Frame) ([]byte, error) {
	if self.format == FormatJSON {
		return f.MarshalJSON()
	}
	return []byte(f.String()), nil
}

// Forward sends one frame. Error means the frame was neither delivered nor spooled.
func (self *Forwarder) Forward(ctx context.Context, f telemetry.Frame) error {
	payload, err := self.Payload(f)
	if err != nil {
		return err
	}
	err = self.sendTimeout(ctx, payload)
	if err == nil {
		metrics.SendCounter(self.sender.String(), metrics.SendOK).Inc()
		self.log.Debugf("forward sent counter=%d sink=%s", f.Counter, self.sender.String())
		return nil
	}
	metrics.SendCounter(self.sender.String(), metrics.SendError).Inc()
	err = errors.Annotatef(err, "forward counter=%d", f.Counter)
	if self.spool == nil {
		return err
	}
	if serr := self.spool.Push(payload); serr != nil {
		return helpers.FoldErrors([]error{err, errors.Annotate(serr, "spool push")})
	}
	metrics.SendCounter(self.sender.String(), metrics.SendSpooled).Inc()
	self.log.Infof("forward spooled counter=%d err=%v", f.Counter, err)
	return nil
}

func (self *Forwarder) sendTimeout(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, self.timeout)
	defer cancel()
	return self.sender.Send(ctx, payload)
}

// Start runs spool redelivery worker, no-op without spool.
func (self *Forwarder) Start(ctx context.Context) {
	if self.spool != nil {
		self.spool.Start(ctx)
	}
}

// Close stops spool worker. Undelivered payloads stay on disk.
func (self *Forwarder) Close() error {
	if self.spool == nil {
		return nil
	}
	return self.spool.Close()
}
