package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sweetshop/apiserver/config"
	"go.opentelemetry.io/otel"
)

const (
	exchangeKindTopic = "topic"
	bindAllEvents     = "#"
	queueSuffix       = ".consumer"
)

// RabbitMQClient publishes stock events to a topic exchange named after the
// channel. Routing keys are "<event>.<sweet id>", so consumers can bind to
// purchases only, restocks only, or a single sweet.
//
// The AMQP channel is put in confirm mode and Publish waits for the broker
// ack. A single channel is not safe for concurrent publishes, hence mu.
type RabbitMQClient struct {
	conn *amqp.Connection

	mu        sync.Mutex
	channel   *amqp.Channel
	exchanges map[string]struct{}

	durable       bool
	autoDelete    bool
	prefetchCount int
}

// NewRabbitMQClient dials the broker and opens a confirming channel.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &RabbitMQClient{
		conn:          conn,
		channel:       ch,
		exchanges:     make(map[string]struct{}),
		durable:       cfg.QueueDurable,
		autoDelete:    cfg.QueueAutoDelete,
		prefetchCount: cfg.PrefetchCount,
	}, nil
}

// Publish sends data to the channel's exchange and blocks until the broker
// confirms it.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	headers := amqpHeaderCarrier{}
	for key, value := range attrs {
		headers[key] = value
	}
	otel.GetTextMapPropagator().Inject(ctx, headers)

	messageID := uuid.NewString()

	r.mu.Lock()
	if err := r.declareExchange(channel); err != nil {
		r.mu.Unlock()
		return "", err
	}
	confirm, err := r.channel.PublishWithDeferredConfirmWithContext(ctx, channel, routingKey(attrs), false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: r.deliveryMode(),
		MessageId:    messageID,
		Headers:      amqp.Table(headers),
		Body:         data,
	})
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", err
	}
	if !acked {
		return "", fmt.Errorf("rabbitmq nacked message %s", messageID)
	}
	return messageID, nil
}

// Subscribe binds a queue named "<channel>.consumer" to every event on the
// channel's exchange and hands deliveries to handler. Failed deliveries
// are requeued. Subscribe uses its own AMQP channel.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if r.prefetchCount > 0 {
		if err := ch.Qos(r.prefetchCount, 0, false); err != nil {
			return err
		}
	}
	if err := ch.ExchangeDeclare(channel, exchangeKindTopic, r.durable, r.autoDelete, false, false, nil); err != nil {
		return err
	}
	queue, err := ch.QueueDeclare(channel+queueSuffix, r.durable, r.autoDelete, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(queue.Name, bindAllEvents, channel, false, nil); err != nil {
		return err
	}

	consumerTag := fmt.Sprintf("%s-%s", config.ServiceName, uuid.NewString())
	deliveries, err := ch.Consume(queue.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(consumerTag, false)
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			msgCtx := otel.GetTextMapPropagator().Extract(ctx, amqpHeaderCarrier(delivery.Headers))
			message := Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			}
			if err := handler(msgCtx, message); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the publishing channel and the connection.
func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// declareExchange declares name once per client. Callers hold mu.
func (r *RabbitMQClient) declareExchange(name string) error {
	if _, ok := r.exchanges[name]; ok {
		return nil
	}
	if err := r.channel.ExchangeDeclare(name, exchangeKindTopic, r.durable, r.autoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	r.exchanges[name] = struct{}{}
	return nil
}

// deliveryMode marks messages persistent when the exchange and queues
// survive broker restarts.
func (r *RabbitMQClient) deliveryMode() uint8 {
	if r.durable {
		return amqp.Persistent
	}
	return amqp.Transient
}

// routingKey builds "<event>.<sweet id>" from the message attributes.
func routingKey(attrs map[string]string) string {
	event := attrs[AttrEvent]
	if event == "" {
		event = "unknown"
	}
	if id := attrs[AttrSweetID]; id != "" {
		return event + "." + id
	}
	return event
}

// amqpHeaderCarrier adapts AMQP headers to the OTel propagation carrier.
type amqpHeaderCarrier amqp.Table

func (c amqpHeaderCarrier) Get(key string) string {
	if value, ok := c[key].(string); ok {
		return value
	}
	return ""
}

func (c amqpHeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c amqpHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for key := range c {
		keys = append(keys, key)
	}
	return keys
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
