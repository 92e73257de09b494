package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/womat/debug"
)

// RoutingKey is the routing key of every published sample.
const RoutingKey = "sensor"

// AMQPConfig configures an AMQPPublisher.
type AMQPConfig struct {
	// Host is either host:port or a full amqp:// or amqps:// URL.
	Host     string
	Exchange string

	// Persistent selects persistent delivery mode.
	Persistent bool

	// ContentType is set on every message when non-empty.
	ContentType string

	// Timestamp stamps every message with the publish time.
	Timestamp bool
}

// URL returns the broker URL for Host, using the default guest
// credentials when Host has no scheme.
func (c AMQPConfig) URL() (string, error) {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return "", errors.New("amqp host is required")
	}
	if !strings.Contains(host, "://") {
		host = "amqp://guest:guest@" + host + "/"
	}
	if _, err := amqp.ParseURI(host); err != nil {
		return "", fmt.Errorf("amqp host %q: %w", c.Host, err)
	}
	return host, nil
}

// AMQPPublisher publishes to an exchange of a RabbitMQ broker.
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  AMQPConfig
	now  func() time.Time
}

// DialAMQP connects to the broker and opens a channel.
func DialAMQP(cfg AMQPConfig) (*AMQPPublisher, error) {
	url, err := cfg.URL()
	if err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-closed; ok && err != nil {
			debug.ErrorLog.Printf("amqp connection closed: %v", err)
		}
	}()

	debug.InfoLog.Printf("connected to amqp broker %s, exchange %q", conn.RemoteAddr(), cfg.Exchange)
	return &AMQPPublisher{conn: conn, ch: ch, cfg: cfg, now: time.Now}, nil
}

// Publish sends payload to the exchange under RoutingKey.
func (p *AMQPPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.ch.PublishWithContext(ctx, p.cfg.Exchange, RoutingKey, false, false, p.message(payload))
}

func (p *AMQPPublisher) message(payload []byte) amqp.Publishing {
	msg := amqp.Publishing{
		ContentType: p.cfg.ContentType,
		Body:        payload,
	}
	if p.cfg.Persistent {
		msg.DeliveryMode = amqp.Persistent
	}
	if p.cfg.Timestamp {
		msg.Timestamp = p.now()
	}
	return msg
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	var errs []error
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
