package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// catalogInMemory — in-memory реализация CatalogAccessor. Критическая
// секция ограничена одним read-modify-write на товар: условный
// декремент под общим мьютексом линеаризуем, как того требует модель
// конкурентности сервиса.
type catalogInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Product
}

// NewCatalog возвращает in-memory каталог, заполненный переданными товарами.
func NewCatalog(products ...domain.Product) domain.CatalogAccessor {
	c := &catalogInMemory{items: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		c.items[p.ID] = p
	}
	return c
}

// GetProduct возвращает копию товара или product_not_found.
func (c *catalogInMemory) GetProduct(productID string) (domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	product, ok := c.items[productID]
	if !ok {
		return domain.Product{}, domain.NewProductNotFound(productID)
	}
	return product, nil
}

// TryDecrementStock уменьшает остаток на qty, только если его достаточно.
func (c *catalogInMemory) TryDecrementStock(productID string, qty int32) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrItemQtyInvalid
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	product, ok := c.items[productID]
	if !ok {
		return false, domain.NewProductNotFound(productID)
	}
	if product.Stock < qty {
		return false, nil
	}

	product.Stock -= qty
	c.items[productID] = product
	return true, nil
}

// IncrementStock возвращает qty единиц в остаток.
func (c *catalogInMemory) IncrementStock(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	product, ok := c.items[productID]
	if !ok {
		return domain.NewProductNotFound(productID)
	}
	product.Stock += qty
	c.items[productID] = product
	return nil
}

// IncrementSalesCount увеличивает счётчик продаж.
func (c *catalogInMemory) IncrementSalesCount(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	product, ok := c.items[productID]
	if !ok {
		return domain.NewProductNotFound(productID)
	}
	product.SalesCount += qty
	c.items[productID] = product
	return nil
}

// DecrementSalesCount уменьшает счётчик продаж, не опуская его ниже нуля.
func (c *catalogInMemory) DecrementSalesCount(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	product, ok := c.items[productID]
	if !ok {
		return domain.NewProductNotFound(productID)
	}
	product.SalesCount -= qty
	if product.SalesCount < 0 {
		product.SalesCount = 0
	}
	c.items[productID] = product
	return nil
}

var _ domain.CatalogAccessor = (*catalogInMemory)(nil)
