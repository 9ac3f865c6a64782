package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnEventRoutingKey routes connection lifecycle events on the topic
// exchange.
const ConnEventRoutingKey = "socket.lifecycle"

// ConnEvent is the envelope published for a websocket lifecycle transition
// (ws_connect, ws_disconnect, ws_error).
type ConnEvent struct {
	Name     string `json:"name"`
	ConnID   string `json:"conn_id"`
	ClientID string `json:"client_id,omitempty"`
	IP       string `json:"ip,omitempty"`
	UptimeMs int64  `json:"uptime_ms"`
	Reason   string `json:"reason,omitempty"`
}

// TraceHeaders builds the message headers correlating a lifecycle event
// with its originating request and trace.
func TraceHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["request_id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// ConnEventPublisher ships lifecycle events to a broker.
type ConnEventPublisher interface {
	Publish(ctx context.Context, event ConnEvent, headers map[string]string) error
	Close() error
}

// AMQPConnEventPublisher publishes lifecycle events to a RabbitMQ topic
// exchange as persistent JSON messages.
type AMQPConnEventPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPConnEventPublisher dials the broker and declares the exchange.
func NewAMQPConnEventPublisher(url, exchange string) (*AMQPConnEventPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPConnEventPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPConnEventPublisher) Publish(ctx context.Context, event ConnEvent, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	amqpHeaders := amqp.Table{}
	for key, value := range headers {
		amqpHeaders[key] = value
	}

	return p.channel.PublishWithContext(ctx, p.exchange, ConnEventRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqpHeaders,
	})
}

func (p *AMQPConnEventPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var connEventPublisher ConnEventPublisher

// SetConnEventPublisher installs the process-wide lifecycle publisher.
// Left unset, PublishConnEvent is a no-op.
func SetConnEventPublisher(publisher ConnEventPublisher) {
	connEventPublisher = publisher
}

// PublishConnEvent ships one lifecycle event. Publish failures are counted
// and logged, never surfaced to the transport.
func PublishConnEvent(ctx context.Context, event ConnEvent, headers map[string]string) {
	if connEventPublisher == nil {
		return
	}

	if err := connEventPublisher.Publish(ctx, event, headers); err != nil {
		IncAMQPPublishError()
		log.Printf("conn event publish failed: %v", err)
	}
}
