package forward

import (
	"context"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/lorarelay/log2"
)

type mqttSender struct {
	log   *log2.Log
	mopt  *mqtt.ClientOptions
	topic string
	qos   byte
}

func NewMqtt(c Config, timeout time.Duration, log *log2.Log) (Sender, error) {
	if c.MqttBroker == "" {
		return nil, errors.NotValidf("forward sink=mqtt requires mqtt_broker")
	}
	if c.MqttQos < 0 || c.MqttQos > 2 {
		return nil, errors.NotValidf("mqtt_qos=%d", c.MqttQos)
	}
	mqtt.ERROR = log
	mqtt.CRITICAL = log

	clientId := c.MqttClientId
	if clientId == "" {
		host, _ := os.Hostname()
		clientId = fmt.Sprintf("lorarelay-%s-%d", host, os.Getpid())
	}
	topic := c.MqttTopic
	if topic == "" {
		topic = DefaultMqttTopic
	}
	self := &mqttSender{
		log:   log,
		topic: topic,
		qos:   byte(c.MqttQos),
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(c.MqttBroker).
		SetClientID(clientId).
		SetUsername(c.MqttUsername).
		SetPassword(c.MqttPassword).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(timeout).
		SetWriteTimeout(timeout)
	return self, nil
}

func (self *mqttSender) String() string { return SinkMqtt }

// Send connects, publishes payload, disconnects.
func (self *mqttSender) Send(ctx context.Context, payload []byte) error {
	m := mqtt.NewClient(self.mopt)
	if err := waitToken(ctx, m.Connect()); err != nil {
		return errors.Annotate(err, "mqtt connect")
	}
	defer m.Disconnect(100)

	if err := waitToken(ctx, m.Publish(self.topic, self.qos, false, payload)); err != nil {
		return errors.Annotatef(err, "mqtt publish topic=%s", self.topic)
	}
	return nil
}

func waitToken(ctx context.Context, t mqtt.Token) error {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !t.WaitTimeout(timeout) {
		return errors.Timeoutf("mqtt after %s", timeout)
	}
	return t.Error()
}
