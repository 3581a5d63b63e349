// Package stock делает изменения остатков для всего набора позиций
// заказа атомарными, хотя каталог гарантирует атомарность только на
// уровне одного товара.
package stock

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Manager резервирует и возвращает сток по принципу «всё или ничего».
type Manager struct {
	catalog domain.CatalogAccessor
	logger  *log.Entry
	metrics *metrics.FulfillmentMetrics
}

// NewManager создаёт менеджер поверх каталога.
func NewManager(catalog domain.CatalogAccessor, logger *log.Entry, m *metrics.FulfillmentMetrics) *Manager {
	if logger == nil {
		logger = log.New().WithField("component", "stock")
	}
	return &Manager{
		catalog: catalog,
		logger:  logger,
		metrics: m,
	}
}

// reservationLine — агрегированное требование по одному товару.
type reservationLine struct {
	productID string
	qty       int32
}

// aggregate сводит позиции к требованию на товар и сортирует по id.
// Фиксированный глобальный порядок декрементов исключает взаимные
// блокировки, когда конкурирующие заказы пересекаются по товарам.
func aggregate(items []domain.OrderLineItem) []reservationLine {
	byProduct := make(map[string]int32, len(items))
	for _, item := range items {
		byProduct[item.ProductID] += item.Qty
	}

	lines := make([]reservationLine, 0, len(byProduct))
	for id, qty := range byProduct {
		lines = append(lines, reservationLine{productID: id, qty: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].productID < lines[j].productID
	})
	return lines
}

// Reserve пытается зарезервировать сток под все позиции заказа.
// Если хотя бы один условный декремент не прошёл, уже применённые
// декременты компенсируются до возврата ошибки: частично
// зарезервированный заказ снаружи не наблюдаем.
func (m *Manager) Reserve(orderID string, items []domain.OrderLineItem) error {
	if len(items) == 0 {
		return domain.ErrItemsRequired
	}

	lines := aggregate(items)
	applied := make([]reservationLine, 0, len(lines))

	for _, line := range lines {
		if line.qty <= 0 {
			m.rollback(orderID, applied)
			return domain.ErrItemQtyInvalid
		}

		ok, err := m.catalog.TryDecrementStock(line.productID, line.qty)
		if err != nil {
			m.rollback(orderID, applied)
			if domain.IsNotFound(err) {
				return err
			}
			return domain.NewInternal("stock_decrement_failed", "failed to decrement stock", err)
		}
		if !ok {
			m.rollback(orderID, applied)
			if m.metrics != nil {
				m.metrics.RecordStockConflict()
			}
			m.logger.WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": line.productID,
				"qty":        line.qty,
			}).Warn("reservation conflict: insufficient stock")
			return domain.NewInsufficientStock(line.productID)
		}

		applied = append(applied, line)
	}

	// Счётчик продаж двигаем только после того, как весь набор
	// зарезервирован: он не участвует в контроле остатка.
	for _, line := range lines {
		if err := m.catalog.IncrementSalesCount(line.productID, line.qty); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": line.productID,
			}).Warn("failed to increment sales count")
		}
	}

	if m.metrics != nil {
		m.metrics.RecordReservation()
	}
	return nil
}

// Restore возвращает ранее зарезервированный сток: остаток растёт на
// qty, счётчик продаж уменьшается (не ниже нуля). Идемпотентность
// обеспечивается вызывающей стороной: Restore выполняется только при
// одноразовом переходе заказа в cancelled.
func (m *Manager) Restore(orderID string, items []domain.OrderLineItem) error {
	lines := aggregate(items)

	var firstErr error
	for _, line := range lines {
		if err := m.catalog.IncrementStock(line.productID, line.qty); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": line.productID,
				"qty":        line.qty,
			}).Error("failed to restore stock")
			continue
		}
		if err := m.catalog.DecrementSalesCount(line.productID, line.qty); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": line.productID,
			}).Warn("failed to decrement sales count")
		}
	}

	if firstErr != nil {
		return domain.NewInternal("stock_restore_failed", "failed to restore stock", firstErr)
	}
	if m.metrics != nil {
		m.metrics.RecordRestore()
	}
	return nil
}

// rollback компенсирует уже применённые декременты в обратном порядке.
func (m *Manager) rollback(orderID string, applied []reservationLine) {
	if len(applied) == 0 {
		return
	}
	if m.metrics != nil {
		m.metrics.RecordReservationRollback()
	}
	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		if err := m.catalog.IncrementStock(line.productID, line.qty); err != nil {
			// Компенсация не удалась: остаток потерян до ручного
			// вмешательства, логируем с максимальным приоритетом.
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": line.productID,
				"qty":        line.qty,
			}).Error("reservation rollback failed")
		}
	}
}
