package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogAccessor.
// Условный декремент выполняется одним UPDATE с предикатом по остатку,
// поэтому row-level блокировка базы линеаризует изменения стока товара.
func NewCatalogRepository(store *Store) domain.CatalogAccessor {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) GetProduct(productID string) (domain.Product, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, image, price_minor, stock, sales_count
		FROM products
		WHERE id = $1
	`, productID).Scan(
		&product.ID, &product.Name, &product.Image,
		&product.PriceMinor, &product.Stock, &product.SalesCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.NewProductNotFound(productID)
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *catalogRepository) TryDecrementStock(productID string, qty int32) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrItemQtyInvalid
	}

	ctx, cancel := opCtx()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND stock >= $1
	`, qty, productID)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Декремент не прошёл: различаем нехватку стока и отсутствие товара.
	exists, err := r.productExists(ctx, productID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.NewProductNotFound(productID)
	}
	return false, nil
}

func (r *catalogRepository) IncrementStock(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	ctx, cancel := opCtx()
	defer cancel()

	return r.applyUpdate(ctx, productID, `
		UPDATE products
		SET stock = stock + $1,
		    updated_at = NOW()
		WHERE id = $2
	`, qty)
}

func (r *catalogRepository) IncrementSalesCount(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	ctx, cancel := opCtx()
	defer cancel()

	return r.applyUpdate(ctx, productID, `
		UPDATE products
		SET sales_count = sales_count + $1,
		    updated_at = NOW()
		WHERE id = $2
	`, qty)
}

func (r *catalogRepository) DecrementSalesCount(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	ctx, cancel := opCtx()
	defer cancel()

	return r.applyUpdate(ctx, productID, `
		UPDATE products
		SET sales_count = GREATEST(sales_count - $1, 0),
		    updated_at = NOW()
		WHERE id = $2
	`, qty)
}

func (r *catalogRepository) applyUpdate(ctx context.Context, productID, query string, qty int32) error {
	res, err := r.db.ExecContext(ctx, query, qty, productID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update product rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewProductNotFound(productID)
	}
	return nil
}

func (r *catalogRepository) productExists(ctx context.Context, productID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, productID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

var _ domain.CatalogAccessor = (*catalogRepository)(nil)
