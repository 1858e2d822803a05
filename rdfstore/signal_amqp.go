package rdfstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPSink publishes signals to a topic exchange, one routing key per
// channel, grounded on the connection/channel shape of the teacher's
// RabbitMQService.
type AMQPSink struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	logger     *logrus.Logger
}

// AMQPSinkConfig configures an AMQPSink.
type AMQPSinkConfig struct {
	URL      string
	Exchange string
	Logger   *logrus.Logger
}

// NewAMQPSink dials the broker, opens a channel and declares a durable
// topic exchange, matching NewRabbitMQServiceWithDialer's connect/open/
// declare sequence.
func NewAMQPSink(cfg AMQPSinkConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rdfstore: connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rdfstore: open amqp channel: %w", err)
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "rdfstore.signals"
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rdfstore: declare amqp exchange: %w", err)
	}
	return &AMQPSink{connection: conn, channel: ch, exchange: exchange, logger: cfg.Logger}, nil
}

// Emit publishes payload as JSON to the sink's exchange with channel as the
// routing key. A publish failure is logged, not propagated (spec §4.11).
func (s *AMQPSink) Emit(ctx context.Context, channel string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rdfstore: marshal signal payload: %w", err)
	}
	err = s.channel.Publish(s.exchange, channel, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithField("channel", channel).Warn("rdfstore: signal publish failed")
		}
		return nil
	}
	return nil
}

// Close closes the channel and connection, tolerating either being nil.
func (s *AMQPSink) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.connection != nil {
		s.connection.Close()
	}
	return nil
}
