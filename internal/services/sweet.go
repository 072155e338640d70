package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweetshop/apiserver/config"
	"github.com/sweetshop/apiserver/internal/mq"
	"github.com/sweetshop/apiserver/internal/store"
	"github.com/sweetshop/apiserver/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultPurchaseQuantity = 1

// SweetRepository defines persistence operations for sweets.
//
// DecrementIfEnough must apply the stock check and the decrement as one
// atomic step.
type SweetRepository interface {
	List(ctx context.Context, filter types.SearchFilter) ([]types.Sweet, error)
	Get(ctx context.Context, id string) (types.Sweet, error)
	Create(ctx context.Context, sweet types.Sweet) (types.Sweet, error)
	Update(ctx context.Context, id string, patch types.SweetPatch) (types.Sweet, error)
	Delete(ctx context.Context, id string) error
	DecrementIfEnough(ctx context.Context, id string, qty int) (types.Sweet, error)
	Increment(ctx context.Context, id string, qty int) (types.Sweet, error)
}

// EventPublisher sends stock events to a broker channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// CreateSweetInput carries the fields of a new sweet. Price is required
// and Quantity defaults to zero.
type CreateSweetInput struct {
	Name     string
	Category string
	Price    *float64
	Quantity *int
}

// InventoryService encapsulates catalog and stock use-cases. Callers are
// expected to have authorized the request already.
type InventoryService struct {
	repo      SweetRepository
	publisher EventPublisher
	channel   string
	logger    *zap.Logger
	tracer    trace.Tracer
}

// InventoryOption configures an InventoryService.
type InventoryOption func(*InventoryService)

// WithInventoryLogger sets the logger used by the service.
func WithInventoryLogger(logger *zap.Logger) InventoryOption {
	return func(s *InventoryService) { s.logger = logger }
}

// WithStockEvents publishes a StockEvent to channel after each purchase
// and restock.
func WithStockEvents(publisher EventPublisher, channel string) InventoryOption {
	return func(s *InventoryService) {
		s.publisher = publisher
		s.channel = channel
	}
}

func NewInventoryService(repo SweetRepository, opts ...InventoryOption) *InventoryService {
	s := &InventoryService{
		repo:   repo,
		logger: zap.NewNop(),
		tracer: otel.Tracer(config.ServiceName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every sweet, newest first.
func (s *InventoryService) List(ctx context.Context) ([]types.Sweet, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.list")
	defer span.End()

	sweets, err := s.repo.List(ctx, types.SearchFilter{})
	if err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.Int("inventory.results", len(sweets)))
	return sweets, nil
}

// Search returns the sweets matching every supplied filter, newest first.
func (s *InventoryService) Search(ctx context.Context, filter types.SearchFilter) ([]types.Sweet, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.search")
	defer span.End()

	filter.Name = strings.TrimSpace(filter.Name)
	filter.Category = strings.TrimSpace(filter.Category)

	verr := &ValidationError{}
	if filter.MinPrice != nil && *filter.MinPrice < 0 {
		verr.Add("minPrice", "Minimum price must be a non-negative number")
	}
	if filter.MaxPrice != nil && *filter.MaxPrice < 0 {
		verr.Add("maxPrice", "Maximum price must be a non-negative number")
	}
	if err := verr.OrNil(); err != nil {
		return nil, s.fail(span, err)
	}

	sweets, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.Int("inventory.results", len(sweets)))
	return sweets, nil
}

// Create adds a sweet to the catalog.
func (s *InventoryService) Create(ctx context.Context, in CreateSweetInput) (types.Sweet, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.create")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	category := strings.TrimSpace(in.Category)

	verr := &ValidationError{}
	if name == "" {
		verr.Add("name", "Name is required")
	}
	if category == "" {
		verr.Add("category", "Category is required")
	}
	if in.Price == nil || *in.Price < 0 {
		verr.Add("price", "Price must be a non-negative number")
	}
	if in.Quantity != nil {
		checkStockQuantity(verr, *in.Quantity)
	}
	if err := verr.OrNil(); err != nil {
		return types.Sweet{}, s.fail(span, err)
	}

	sweet := types.Sweet{
		Name:     name,
		Category: category,
		Price:    *in.Price,
	}
	if in.Quantity != nil {
		sweet.Quantity = *in.Quantity
	}

	created, err := s.repo.Create(ctx, sweet)
	if err != nil {
		return types.Sweet{}, s.fail(span, translateStoreError(err))
	}

	span.SetAttributes(attribute.String("sweet.id", created.ID), attribute.Int("inventory.quantity", created.Quantity))
	s.logger.Info("sweet created", zap.String("sweet.id", created.ID), zap.String("sweet.name", created.Name))
	return created, nil
}

// Update merges the supplied fields into the sweet identified by id.
func (s *InventoryService) Update(ctx context.Context, id string, patch types.SweetPatch) (types.Sweet, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.update", trace.WithAttributes(attribute.String("sweet.id", id)))
	defer span.End()

	verr := &ValidationError{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			verr.Add("name", "Name is required")
		}
		patch.Name = &name
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		if category == "" {
			verr.Add("category", "Category is required")
		}
		patch.Category = &category
	}
	if patch.Price != nil && *patch.Price < 0 {
		verr.Add("price", "Price must be a non-negative number")
	}
	if patch.Quantity != nil {
		checkStockQuantity(verr, *patch.Quantity)
	}
	if err := verr.OrNil(); err != nil {
		return types.Sweet{}, s.fail(span, err)
	}

	if patch.Empty() {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return types.Sweet{}, s.fail(span, translateStoreError(err))
		}
		return current, nil
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return types.Sweet{}, s.fail(span, translateStoreError(err))
	}

	s.logger.Info("sweet updated", zap.String("sweet.id", id))
	return updated, nil
}

// Delete permanently removes the sweet identified by id.
func (s *InventoryService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.delete", trace.WithAttributes(attribute.String("sweet.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail(span, translateStoreError(err))
	}

	s.logger.Info("sweet deleted", zap.String("sweet.id", id))
	return nil
}

// Purchase removes qty units from stock. A nil qty buys one unit. The
// stock check and decrement happen atomically in the repository.
func (s *InventoryService) Purchase(ctx context.Context, id string, qty *int) (types.Sweet, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.purchase", trace.WithAttributes(attribute.String("sweet.id", id)))
	defer span.End()

	requested := defaultPurchaseQuantity
	if qty != nil {
		requested = *qty
	}
	if requested < 1 || requested > store.MaxQuantity {
		verr := &ValidationError{}
		verr.Add("quantity", fmt.Sprintf("Purchase quantity must be an integer between 1 and %d", store.MaxQuantity))
		return types.Sweet{}, s.fail(span, verr)
	}
	span.SetAttributes(attribute.Int("inventory.requested", requested))

	sweet, err := s.repo.DecrementIfEnough(ctx, id, requested)
	if err != nil {
		err = translateStoreError(err)
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			span.SetAttributes(attribute.Int("inventory.available", stockErr.Available))
		}
		return types.Sweet{}, s.fail(span, err)
	}

	span.SetAttributes(attribute.Int("inventory.quantity", sweet.Quantity))
	span.SetStatus(codes.Ok, "purchase applied")
	s.logger.Info("sweet purchased",
		zap.String("sweet.id", id),
		zap.Int("inventory.requested", requested),
		zap.Int("inventory.quantity", sweet.Quantity),
	)
	s.publish(ctx, sweet, types.StockPurchased, -requested)
	return sweet, nil
}

// Restock adds qty units to stock. qty is required and must be positive.
func (s *InventoryService) Restock(ctx context.Context, id string, qty *int) (types.Sweet, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.restock", trace.WithAttributes(attribute.String("sweet.id", id)))
	defer span.End()

	if qty == nil || *qty < 1 || *qty > store.MaxQuantity {
		verr := &ValidationError{}
		verr.Add("quantity", fmt.Sprintf("Restock quantity must be an integer between 1 and %d", store.MaxQuantity))
		return types.Sweet{}, s.fail(span, verr)
	}
	span.SetAttributes(attribute.Int("inventory.requested", *qty))

	sweet, err := s.repo.Increment(ctx, id, *qty)
	if err != nil {
		return types.Sweet{}, s.fail(span, translateStoreError(err))
	}

	span.SetAttributes(attribute.Int("inventory.quantity", sweet.Quantity))
	span.SetStatus(codes.Ok, "restock applied")
	s.logger.Info("sweet restocked",
		zap.String("sweet.id", id),
		zap.Int("inventory.requested", *qty),
		zap.Int("inventory.quantity", sweet.Quantity),
	)
	s.publish(ctx, sweet, types.StockRestocked, *qty)
	return sweet, nil
}

// publish emits a stock event. Failures are logged and never fail the
// stock change that already committed.
func (s *InventoryService) publish(ctx context.Context, sweet types.Sweet, kind types.StockEventKind, delta int) {
	if s.publisher == nil {
		return
	}

	event := types.StockEvent{
		SweetID:    sweet.ID,
		Name:       sweet.Name,
		Kind:       kind,
		Delta:      delta,
		Quantity:   sweet.Quantity,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encode stock event", zap.Error(err))
		return
	}

	attrs := map[string]string{
		mq.AttrEvent:   kind.String(),
		mq.AttrSweetID: sweet.ID,
	}
	if _, err := s.publisher.Publish(ctx, s.channel, data, attrs); err != nil {
		s.logger.Warn("publish stock event",
			zap.String("sweet.id", sweet.ID),
			zap.String("channel", s.channel),
			zap.Error(err),
		)
	}
}

func checkStockQuantity(verr *ValidationError, qty int) {
	switch {
	case qty < 0:
		verr.Add("quantity", "Quantity must be a non-negative integer")
	case qty > store.MaxQuantity:
		verr.Add("quantity", fmt.Sprintf("Quantity must not exceed %d", store.MaxQuantity))
	}
}

// fail records err on span. Expected domain errors are not marked as span
// errors.
func (s *InventoryService) fail(span trace.Span, err error) error {
	if isDomainError(err) {
		span.SetAttributes(attribute.String("inventory.outcome", err.Error()))
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func isDomainError(err error) bool {
	var verr *ValidationError
	var stockErr *InsufficientStockError
	return errors.As(err, &verr) ||
		errors.As(err, &stockErr) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateName)
}
