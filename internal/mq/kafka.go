package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sweetshop/apiserver/config"
	"go.opentelemetry.io/otel"
)

// KafkaClient publishes to Kafka topics named after the channel. Messages
// are keyed by sweet id so one sweet's events share a partition.
type KafkaClient struct {
	brokers []string
	groupID string
	writer  *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafkaClient constructs a Kafka client from config.
func NewKafkaClient(cfg config.KafkaConfig) (*KafkaClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	return &KafkaClient{
		brokers: cfg.Brokers,
		groupID: cfg.GroupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           batchTimeout,
			BatchSize:              100,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Publish writes a message to the named topic.
func (k *KafkaClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("kafka channel is required")
	}

	messageID := uuid.NewString()
	carrier := headerCarrier{{Key: headerMessageID, Value: []byte(messageID)}}
	for key, value := range attrs {
		carrier.Set(key, value)
	}
	otel.GetTextMapPropagator().Inject(ctx, &carrier)

	msg := kafka.Message{
		Topic:   channel,
		Key:     []byte(attrs[AttrSweetID]),
		Value:   data,
		Headers: carrier,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe consumes the named topic as part of the configured consumer
// group. Offsets are committed only after the handler succeeds.
func (k *KafkaClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("kafka channel is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.brokers,
		Topic:   channel,
		GroupID: k.groupID,
	})
	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		carrier := headerCarrier(msg.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		message := Message{
			ID:         carrier.Get(headerMessageID),
			Data:       msg.Value,
			Attributes: carrier.attributes(),
		}
		if err := handler(msgCtx, message); err != nil {
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// Close closes the writer and every reader opened by Subscribe.
func (k *KafkaClient) Close() error {
	err := k.writer.Close()

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, reader := range k.readers {
		err = errors.Join(err, reader.Close())
	}
	k.readers = nil
	return err
}

const headerMessageID = "message_id"

// headerCarrier adapts Kafka headers to a propagation.TextMapCarrier.
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) attributes() map[string]string {
	if len(*c) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(*c))
	for _, h := range *c {
		if h.Key == headerMessageID {
			continue
		}
		attrs[h.Key] = string(h.Value)
	}
	return attrs
}
