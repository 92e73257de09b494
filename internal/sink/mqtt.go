package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	Broker   string
	ClientID string

	// Exchange is the topic prefix; samples go to <Exchange>/sensor.
	Exchange string
	QoS      byte
}

// Topic returns the publish topic.
func (c MQTTConfig) Topic() string {
	prefix := strings.TrimSuffix(c.Exchange, "/")
	if prefix == "" {
		return RoutingKey
	}
	return prefix + "/" + RoutingKey
}

// MQTTPublisher publishes to an MQTT broker.
type MQTTPublisher struct {
	client paho.Client
	topic  string
	qos    byte
}

// DialMQTT connects to the broker. Automatic reconnect is off: a lost
// connection surfaces as a publish error.
func DialMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid qos %d", cfg.QoS)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "moisture-sensor"
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			debug.ErrorLog.Printf("mqtt connection lost: %v", err)
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	debug.InfoLog.Printf("connected to mqtt broker %s, topic %q", cfg.Broker, cfg.Topic())
	return &MQTTPublisher{client: client, topic: cfg.Topic(), qos: cfg.QoS}, nil
}

// Publish sends payload to the topic, not retained.
func (p *MQTTPublisher) Publish(ctx context.Context, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("not connected")
	}
	token := p.client.Publish(p.topic, p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
