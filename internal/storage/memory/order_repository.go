package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const defaultListLimit = 100

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Order
	byNumber map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		byNumber: make(map[string]string),
	}
}

// Create сохраняет новый заказ. Уникальность номера обеспечивается
// хранилищем, как и в postgres-реализации.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, exists := r.byNumber[order.Number]; exists {
		return domain.ErrOrderNumberTaken
	}

	// Сохраняем глубокую копию, чтобы избежать мутаций извне.
	r.items[order.ID] = cloneOrder(order)
	r.byNumber[order.Number] = order.ID
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByNumber возвращает заказ по номеру.
func (r *orderRepositoryInMemory) GetByNumber(number string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNumber[number]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(r.items[id]), nil
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (r *orderRepositoryInMemory) ListByUser(userID string, filter domain.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.UserID != userID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Order{}, nil
	}
	matched = matched[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Save применяет обновления с учётом optimistic locking. История
// статусов только дополняется: укорачивание истории отклоняется.
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	if len(order.StatusHistory) < len(stored.StatusHistory) {
		return domain.ErrHistoryOutOfSync
	}

	updated := cloneOrder(order)
	updated.Version = order.Version + 1
	r.items[order.ID] = updated
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderLineItem(nil), src.Items...)
	dst.StatusHistory = append([]domain.StatusHistoryEntry(nil), src.StatusHistory...)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
