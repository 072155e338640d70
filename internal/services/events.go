package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sweetshop/apiserver/internal/mq"
	"github.com/sweetshop/apiserver/types"
	"go.uber.org/zap"
)

// EventSubscriber consumes a broker channel until ctx is done.
type EventSubscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// StockEventWatcher consumes the stock events published by
// InventoryService and records each one in the log.
type StockEventWatcher struct {
	subscriber EventSubscriber
	channel    string
	logger     *zap.Logger
}

func NewStockEventWatcher(subscriber EventSubscriber, channel string, logger *zap.Logger) *StockEventWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockEventWatcher{
		subscriber: subscriber,
		channel:    channel,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled or the subscription fails. A
// cancelled context is a clean stop and returns nil.
func (w *StockEventWatcher) Run(ctx context.Context) error {
	w.logger.Info("watching stock events", zap.String("channel", w.channel))
	err := w.subscriber.Subscribe(ctx, w.channel, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle logs one delivery. Payloads that do not decode are logged and
// acknowledged so they are not redelivered forever.
func (w *StockEventWatcher) Handle(_ context.Context, msg mq.Message) error {
	var event types.StockEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		w.logger.Warn("drop malformed stock event",
			zap.String("message.id", msg.ID),
			zap.String("event", msg.Attributes[mq.AttrEvent]),
			zap.Error(err),
		)
		return nil
	}

	w.logger.Info("stock event",
		zap.String("message.id", msg.ID),
		zap.String("sweet.id", event.SweetID),
		zap.String("sweet.name", event.Name),
		zap.Stringer("kind", event.Kind),
		zap.Int("delta", event.Delta),
		zap.Int("inventory.quantity", event.Quantity),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
