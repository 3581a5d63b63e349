// Package order реализует сценарии оформления и обслуживания заказов:
// создание со снимком позиций и резервированием стока, чтение, переходы
// статусов и отмена с возвратом резерва.
package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/pricing"
)

const maxNumberRetries = 5

// Типы событий, попадающих в transactional outbox.
const (
	eventOrderCreated       = "order.created"
	eventOrderStatusChanged = "order.status_changed"
	eventOrderCanceled      = "order.canceled"
	eventPaymentChanged     = "order.payment_status_changed"
)

// StockReserver резервирует и возвращает сток под позиции заказа.
type StockReserver interface {
	Reserve(orderID string, items []domain.OrderLineItem) error
	Restore(orderID string, items []domain.OrderLineItem) error
}

// Service — фасад сценариев работы с заказами.
type Service struct {
	orders  domain.OrderRepository
	catalog domain.CatalogAccessor
	users   domain.UserDirectory
	stock   StockReserver
	pricing *pricing.Engine
	machine *lifecycle.Machine
	outbox  domain.OutboxRepository
	metrics *metrics.FulfillmentMetrics
	logger  *log.Entry
}

// NewService создаёт сервис заказов. outbox и metrics опциональны:
// nil отключает публикацию событий и сбор метрик соответственно.
func NewService(
	orders domain.OrderRepository,
	catalog domain.CatalogAccessor,
	users domain.UserDirectory,
	stock StockReserver,
	pricingEngine *pricing.Engine,
	machine *lifecycle.Machine,
	outbox domain.OutboxRepository,
	m *metrics.FulfillmentMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order_service")
	}
	return &Service{
		orders:  orders,
		catalog: catalog,
		users:   users,
		stock:   stock,
		pricing: pricingEngine,
		machine: machine,
		outbox:  outbox,
		metrics: m,
		logger:  logger,
	}
}

// CreateOrderItem — запрошенная позиция: товар и количество.
// Цена и название не принимаются от клиента, снимок берётся из каталога.
type CreateOrderItem struct {
	ProductID string
	Qty       int32
}

// CreateOrderInput — параметры оформления заказа.
type CreateOrderInput struct {
	UserID          string
	Items           []CreateOrderItem
	ShippingMethod  domain.ShippingMethod
	PaymentMethod   domain.PaymentMethod
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	DiscountMinor   int64
	Notes           string
}

func (in CreateOrderInput) validate() error {
	if in.UserID == "" {
		return domain.ErrUserRequired
	}
	if len(in.Items) == 0 {
		return domain.ErrItemsRequired
	}
	for _, item := range in.Items {
		if item.ProductID == "" {
			return domain.ErrItemsRequired
		}
		if item.Qty < 1 {
			return domain.ErrItemQtyInvalid
		}
	}
	if !in.ShippingMethod.Valid() {
		return domain.ErrShippingMethodInvalid
	}
	if !in.PaymentMethod.Valid() {
		return domain.ErrPaymentMethodInvalid
	}
	if in.DiscountMinor < 0 {
		return domain.ErrDiscountNegative
	}
	if in.ShippingAddress.Empty() {
		return domain.ErrShippingAddressRequired
	}
	return nil
}

// CreateOrder оформляет заказ: валидирует вход, снимает снимок позиций
// из каталога, считает стоимость, резервирует сток и сохраняет заказ в
// статусе pending. При любой ошибке после резервирования резерв
// компенсируется, частично созданных заказов не остаётся.
func (s *Service) CreateOrder(in CreateOrderInput) (domain.Order, error) {
	started := time.Now()

	order, err := s.createOrder(in)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordOrderFailed()
		}
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
		s.metrics.RecordCreateDuration(time.Since(started))
	}
	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
		"user_id":      order.UserID,
		"total_minor":  order.TotalMinor,
	}).Info("order created")

	s.emitEvent(order, eventOrderCreated, map[string]interface{}{
		"order_number": order.Number,
		"user_id":      order.UserID,
		"status":       string(order.Status),
		"total_minor":  order.TotalMinor,
		"item_count":   order.ItemCount(),
	})
	return order, nil
}

func (s *Service) createOrder(in CreateOrderInput) (domain.Order, error) {
	if err := in.validate(); err != nil {
		return domain.Order{}, err
	}

	exists, err := s.users.UserExists(in.UserID)
	if err != nil {
		return domain.Order{}, domain.NewInternal("user_lookup_failed", "failed to look up user", err)
	}
	if !exists {
		return domain.Order{}, domain.ErrUserNotFound
	}

	now := time.Now().UTC()
	items, err := s.snapshotItems(in.Items, now)
	if err != nil {
		return domain.Order{}, err
	}

	totals, err := s.pricing.Quote(items, in.ShippingMethod, in.DiscountMinor)
	if err != nil {
		return domain.Order{}, err
	}

	orderID := uuid.NewString()
	if err := s.stock.Reserve(orderID, items); err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:              orderID,
		UserID:          in.UserID,
		Status:          domain.OrderStatusPending,
		Items:           items,
		SubtotalMinor:   totals.SubtotalMinor,
		ShippingMinor:   totals.ShippingMinor,
		TaxMinor:        totals.TaxMinor,
		DiscountMinor:   totals.DiscountMinor,
		TotalMinor:      totals.TotalMinor,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingMethod:  in.ShippingMethod,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		Notes:           in.Notes,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusPending, Occurred: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.persistNewOrder(&order); err != nil {
		// Заказ не сохранён, резерв больше никому не принадлежит.
		if restoreErr := s.stock.Restore(orderID, items); restoreErr != nil {
			s.logger.WithError(restoreErr).WithField("order_id", orderID).
				Error("failed to release reservation after persist failure")
		}
		return domain.Order{}, err
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.logger.WithError(domain.JoinErrors(errs)).WithField("order_id", orderID).
			Error("persisted order violates invariants")
	}
	return order, nil
}

// persistNewOrder сохраняет заказ, перегенерируя номер при столкновении.
func (s *Service) persistNewOrder(order *domain.Order) error {
	var lastErr error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		number, err := newOrderNumber(order.CreatedAt)
		if err != nil {
			return domain.NewInternal("order_number_failed", "failed to generate order number", err)
		}
		order.Number = number

		err = s.orders.Create(*order)
		if err == nil {
			return nil
		}
		if !domain.IsConflict(err) {
			return err
		}
		lastErr = err
		s.logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"order_number": number,
			"attempt":      attempt + 1,
		}).Warn("order number collision, regenerating")
	}
	return lastErr
}

// snapshotItems строит неизменяемые снимки позиций по каталогу.
func (s *Service) snapshotItems(requested []CreateOrderItem, now time.Time) ([]domain.OrderLineItem, error) {
	items := make([]domain.OrderLineItem, 0, len(requested))
	for _, req := range requested {
		product, err := s.catalog.GetProduct(req.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.OrderLineItem{
			ID:             uuid.NewString(),
			ProductID:      product.ID,
			Name:           product.Name,
			Image:          product.Image,
			UnitPriceMinor: product.PriceMinor,
			Qty:            req.Qty,
			SubtotalMinor:  product.PriceMinor * int64(req.Qty),
			CreatedAt:      now,
		})
	}
	return items, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.orders.Get(id)
}

// GetOrderByNumber возвращает заказ по человекочитаемому номеру.
func (s *Service) GetOrderByNumber(number string) (domain.Order, error) {
	if number == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.orders.GetByNumber(number)
}

// ListUserOrders возвращает заказы пользователя, новые первыми.
func (s *Service) ListUserOrders(userID string, filter domain.ListFilter) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	if filter.Status != nil && !domain.ValidStatus(*filter.Status) {
		return nil, domain.ErrStatusInvalid
	}

	exists, err := s.users.UserExists(userID)
	if err != nil {
		return nil, domain.NewInternal("user_lookup_failed", "failed to look up user", err)
	}
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	return s.orders.ListByUser(userID, filter)
}

// TransitionStatus переводит заказ в новый статус по графу переходов.
func (s *Service) TransitionStatus(orderID string, next domain.OrderStatus, actor, note string) (domain.Order, error) {
	order, err := s.machine.Transition(orderID, next, actor, note)
	if err != nil {
		return domain.Order{}, err
	}

	eventType := eventOrderStatusChanged
	if next == domain.OrderStatusCancelled {
		eventType = eventOrderCanceled
	}
	s.emitEvent(order, eventType, map[string]interface{}{
		"status": string(next),
		"actor":  actor,
	})
	return order, nil
}

// CancelOrder отменяет заказ и возвращает резерв стока. Повторная
// отмена отклоняется как недопустимый переход, поэтому возврат стока
// не задваивается.
func (s *Service) CancelOrder(orderID, actor, reason string) (domain.Order, error) {
	order, err := s.machine.Cancel(orderID, actor, reason)
	if err != nil {
		return domain.Order{}, err
	}

	s.emitEvent(order, eventOrderCanceled, map[string]interface{}{
		"actor":  actor,
		"reason": reason,
	})
	return order, nil
}

// SetPaymentStatus обновляет платёжный статус заказа. Повторная
// установка того же статуса — no-op.
func (s *Service) SetPaymentStatus(orderID string, status domain.PaymentStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.ErrPaymentStatusInvalid
	}

	for attempt := 0; attempt < 3; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if order.PaymentStatus == status {
			return order, nil
		}

		order.PaymentStatus = status
		order.UpdatedAt = time.Now().UTC()
		if err := s.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) {
				continue
			}
			return domain.Order{}, err
		}

		order.Version++
		s.emitEvent(order, eventPaymentChanged, map[string]interface{}{
			"payment_status": string(status),
		})
		return order, nil
	}
	return domain.Order{}, domain.ErrOrderVersionConflict
}

// emitEvent кладёт событие в outbox; публикацией занимается воркер.
func (s *Service) emitEvent(order domain.Order, eventType string, payload map[string]interface{}) {
	if s.outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	} else if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}
