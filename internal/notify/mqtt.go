package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultMQTTTopic is the topic prefix used when none is configured.
const DefaultMQTTTopic = "efd-bridge/events"

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// MQTTSink publishes events as JSON to <topic>/<event type>.
type MQTTSink struct {
	client  mqttPublisher
	closer  func()
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTSink connects to the broker.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt sink: empty broker")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt sink: invalid qos %d", cfg.QoS)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "efd-bridge"
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	if err := connectMQTT(client, 10*time.Second); err != nil {
		return nil, err
	}
	sink := newMQTTSink(client, cfg.Topic, cfg.QoS)
	sink.closer = func() { client.Disconnect(1000) }
	return sink, nil
}

type mqttConnector interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
}

// connectMQTT waits for the first connection. On failure the client is
// disconnected so the connect-retry loop stops.
func connectMQTT(client mqttConnector, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return errors.New("mqtt sink: connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt sink: connect to broker: %w", err)
	}
	return nil
}

func newMQTTSink(client mqttPublisher, topic string, qos byte) *MQTTSink {
	topic = strings.TrimRight(strings.TrimSpace(topic), "/")
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTTSink{client: client, topic: topic, qos: qos, timeout: 5 * time.Second}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Send implements Sink.
func (s *MQTTSink) Send(ctx context.Context, event Event, _ string) error {
	if s == nil || s.client == nil {
		return errors.New("mqtt sink: not connected")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("mqtt sink: format payload: %w", err)
	}
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	token := s.client.Publish(s.topic+"/"+string(event.Type), s.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return errors.New("mqtt sink: publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt sink: publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	if s != nil && s.closer != nil {
		s.closer()
	}
	return nil
}
