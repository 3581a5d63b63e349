// Package lifecycle управляет переходами статусов заказа. Переходы
// персистируются через optimistic locking, а возврат стока при отмене
// выполняется ровно один раз: его запускает сам успешный переход.
package lifecycle

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

const (
	maxSaveRetries   = 3
	saveRetryBackoff = 10 * time.Millisecond
)

// StockRestorer возвращает ранее зарезервированный сток заказа.
type StockRestorer interface {
	Restore(orderID string, items []domain.OrderLineItem) error
}

// Machine применяет переходы статусов к заказам.
type Machine struct {
	orders  domain.OrderRepository
	stock   StockRestorer
	logger  *log.Entry
	metrics *metrics.FulfillmentMetrics
}

// NewMachine создаёт машину статусов поверх репозитория заказов.
func NewMachine(orders domain.OrderRepository, stock StockRestorer, logger *log.Entry, m *metrics.FulfillmentMetrics) *Machine {
	if logger == nil {
		logger = log.New().WithField("component", "lifecycle")
	}
	return &Machine{
		orders:  orders,
		stock:   stock,
		logger:  logger,
		metrics: m,
	}
}

// Transition переводит заказ в статус next, проверяя допустимость
// перехода по графу. Конфликт версий приводит к перечитыванию заказа и
// повторной валидации: если конкурент уже увёл заказ в другой статус,
// повтор завершится ошибкой invalid_transition, а не тихой перезаписью.
func (m *Machine) Transition(orderID string, next domain.OrderStatus, actor, note string) (domain.Order, error) {
	if !domain.ValidStatus(next) {
		return domain.Order{}, domain.ErrStatusInvalid
	}

	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(saveRetryBackoff * time.Duration(attempt))
		}

		order, err := m.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if !domain.CanTransition(order.Status, next) {
			return domain.Order{}, domain.NewInvalidTransition(order.Status, next)
		}

		from := order.Status
		order.AppendStatus(domain.StatusHistoryEntry{
			Status: next,
			Actor:  actor,
			Note:   note,
		})

		if err := m.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) {
				lastErr = err
				m.logger.WithFields(log.Fields{
					"order_id": orderID,
					"next":     next,
					"attempt":  attempt + 1,
				}).Warn("status transition hit version conflict, retrying")
				continue
			}
			return domain.Order{}, err
		}

		order.Version++
		if m.metrics != nil {
			m.metrics.RecordTransition(string(next))
		}
		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"from":     from,
			"to":       next,
			"actor":    actor,
		}).Info("order status transitioned")

		// Сток возвращается только при фактическом входе в cancelled.
		// Повторная отмена до этой строки не доходит: её отклонит
		// проверка перехода выше.
		if next == domain.OrderStatusCancelled && m.stock != nil {
			if err := m.stock.Restore(orderID, order.Items); err != nil {
				m.logger.WithError(err).WithField("order_id", orderID).
					Error("order cancelled but stock restore failed")
				return order, err
			}
		}

		return order, nil
	}

	return domain.Order{}, lastErr
}

// Cancel переводит заказ в cancelled. Отмена разрешена только из
// статусов pending, confirmed и processing; из остальных граф переходов
// её не допускает.
func (m *Machine) Cancel(orderID, actor, note string) (domain.Order, error) {
	return m.Transition(orderID, domain.OrderStatusCancelled, actor, note)
}
