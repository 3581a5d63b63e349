package domain

import "time"

// CatalogAccessor описывает взаимодействие с каталогом товаров.
// Мутации остатка каждого товара линеаризуемы: условный декремент и
// инкремент — единственные точки изменения стока.
type CatalogAccessor interface {
	// GetProduct возвращает товар или ошибку product_not_found.
	GetProduct(productID string) (Product, error)
	// TryDecrementStock атомарно уменьшает остаток на qty, только если
	// остатка достаточно. Возвращает false без изменения стока, если нет.
	TryDecrementStock(productID string, qty int32) (bool, error)
	// IncrementStock атомарно увеличивает остаток (компенсация).
	IncrementStock(productID string, qty int32) error
	// IncrementSalesCount увеличивает счётчик продаж товара.
	IncrementSalesCount(productID string, qty int32) error
	// DecrementSalesCount уменьшает счётчик продаж, не опуская его ниже нуля.
	DecrementSalesCount(productID string, qty int32) error
}

// UserDirectory проверяет существование покупателя. Регистрация и
// аутентификация — внешние подсистемы.
type UserDirectory interface {
	// UserExists возвращает true, если пользователь известен системе.
	UserExists(userID string) (bool, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
