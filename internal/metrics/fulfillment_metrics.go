package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics содержит метрики оформления и жизненного цикла заказов.
type FulfillmentMetrics struct {
	// Счётчики операций
	ordersCreated prometheus.Counter
	ordersFailed  prometheus.Counter

	// Счётчики стока
	reservations         prometheus.Counter
	reservationRollbacks prometheus.Counter
	restores             prometheus.Counter
	stockConflicts       prometheus.Counter

	// Переходы статусов по целевому статусу
	transitions *prometheus.CounterVec

	// Гистограмма времени оформления заказа
	createDuration prometheus.Histogram

	// Счётчик событий outbox
	outboxEvents prometheus.Counter
}

// NewFulfillmentMetrics создаёт новый экземпляр метрик фулфилмента.
func NewFulfillmentMetrics() *FulfillmentMetrics {
	return newFulfillmentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newFulfillmentMetricsWithRegisterer(registerer prometheus.Registerer) *FulfillmentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &FulfillmentMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_created_total",
			Help: "Total number of orders successfully created",
		}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_failed_total",
			Help: "Total number of order creation attempts that failed",
		}),
		reservations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_stock_reservations_total",
			Help: "Total number of successful stock reservations",
		}),
		reservationRollbacks: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_stock_reservation_rollbacks_total",
			Help: "Total number of reservation rollbacks after a partial failure",
		}),
		restores: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_stock_restores_total",
			Help: "Total number of stock restorations after cancellation",
		}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_stock_conflicts_total",
			Help: "Total number of reservations rejected due to insufficient stock",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_order_transitions_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"status"}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_order_create_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик успешно созданных заказов.
func (m *FulfillmentMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderFailed увеличивает счётчик неудачных попыток оформления.
func (m *FulfillmentMetrics) RecordOrderFailed() {
	m.ordersFailed.Inc()
}

// RecordReservation увеличивает счётчик успешных резервирований.
func (m *FulfillmentMetrics) RecordReservation() {
	m.reservations.Inc()
}

// RecordReservationRollback увеличивает счётчик откатов резервирования.
func (m *FulfillmentMetrics) RecordReservationRollback() {
	m.reservationRollbacks.Inc()
}

// RecordRestore увеличивает счётчик возвратов стока.
func (m *FulfillmentMetrics) RecordRestore() {
	m.restores.Inc()
}

// RecordStockConflict увеличивает счётчик отказов из-за нехватки стока.
func (m *FulfillmentMetrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}

// RecordTransition увеличивает счётчик переходов в указанный статус.
func (m *FulfillmentMetrics) RecordTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// RecordCreateDuration записывает время оформления заказа.
func (m *FulfillmentMetrics) RecordCreateDuration(duration time.Duration) {
	m.createDuration.Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *FulfillmentMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
