package domain

// ListFilter ограничивает выборку заказов пользователя.
type ListFilter struct {
	// Status фильтрует по статусу; nil означает все статусы.
	Status *OrderStatus
	// Limit ограничивает размер страницы; 0 — значение по умолчанию хранилища.
	Limit int
	// Offset задаёт смещение страницы.
	Offset int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями и начальной
	// историей. Возвращает ErrOrderNumberTaken, если номер уже занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// GetByNumber возвращает заказ по номеру или ErrOrderNotFound.
	GetByNumber(number string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(userID string, filter ListFilter) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking;
	// записи истории статусов только добавляются, существующие
	// никогда не переписываются.
	Save(order Order) error
}
