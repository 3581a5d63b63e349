package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const opTimeout = 5 * time.Second

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const orderColumns = `
	id, number, user_id, status,
	subtotal_minor, shipping_minor, tax_minor, discount_minor, total_minor,
	payment_method, payment_status, shipping_method,
	ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country,
	bill_line1, bill_line2, bill_city, bill_region, bill_postal_code, bill_country,
	tracking_number, notes, version, created_at, updated_at
`

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,
		        $13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,
		        $25,$26,$27,$28,$29)
	`,
		order.ID, order.Number, order.UserID, string(order.Status),
		order.SubtotalMinor, order.ShippingMinor, order.TaxMinor, order.DiscountMinor, order.TotalMinor,
		string(order.PaymentMethod), string(order.PaymentStatus), string(order.ShippingMethod),
		order.ShippingAddress.Line1, order.ShippingAddress.Line2, order.ShippingAddress.City,
		order.ShippingAddress.Region, order.ShippingAddress.PostalCode, order.ShippingAddress.Country,
		order.BillingAddress.Line1, order.BillingAddress.Line2, order.BillingAddress.City,
		order.BillingAddress.Region, order.BillingAddress.PostalCode, order.BillingAddress.Country,
		order.TrackingNumber, order.Notes, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if strings.Contains(constraint, "number") {
				return domain.ErrOrderNumberTaken
			}
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err = r.insertItemsTx(ctx, tx, order.ID, order.Items); err != nil {
		return err
	}
	if err = r.insertHistoryTx(ctx, tx, order.ID, order.StatusHistory); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := opCtx()
	defer cancel()

	return r.getWhere(ctx, "id = $1", id)
}

func (r *orderRepository) GetByNumber(number string) (domain.Order, error) {
	ctx, cancel := opCtx()
	defer cancel()

	return r.getWhere(ctx, "number = $1", number)
}

func (r *orderRepository) getWhere(ctx context.Context, where string, arg any) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	if order.StatusHistory, err = r.loadHistory(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByUser(userID string, filter domain.ListFilter) ([]domain.Order, error) {
	ctx, cancel := opCtx()
	defer cancel()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, string(*filter.Status))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
		if orders[i].StatusHistory, err = r.loadHistory(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    tracking_number = $3,
		    notes = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		string(order.Status),
		string(order.PaymentStatus),
		order.TrackingNumber,
		order.Notes,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, checkErr := r.orderExistsTx(ctx, tx, order.ID)
		if checkErr != nil {
			err = checkErr
			return err
		}
		if !exists {
			err = domain.ErrOrderNotFound
			return err
		}
		err = domain.ErrOrderVersionConflict
		return err
	}

	// История только дополняется: сохраняем записи, которых ещё нет.
	var stored int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_status_history WHERE order_id = $1`, order.ID,
	).Scan(&stored); err != nil {
		return fmt.Errorf("count status history: %w", err)
	}
	if len(order.StatusHistory) < stored {
		err = domain.ErrHistoryOutOfSync
		return err
	}
	if err = r.insertHistoryTx(ctx, tx, order.ID, order.StatusHistory[stored:]); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}
	return nil
}

func (r *orderRepository) insertItemsTx(ctx context.Context, tx *sql.Tx, orderID string, items []domain.OrderLineItem) error {
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, name, image, unit_price_minor, qty, subtotal_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			item.ID, orderID, item.ProductID, item.Name, item.Image,
			item.UnitPriceMinor, item.Qty, item.SubtotalMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) insertHistoryTx(ctx context.Context, tx *sql.Tx, orderID string, entries []domain.StatusHistoryEntry) error {
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, status, actor, note, occurred_at)
			VALUES ($1,$2,$3,$4,$5)
		`,
			orderID, string(entry.Status), entry.Actor, entry.Note, entry.Occurred,
		); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, name, image, unit_price_minor, qty, subtotal_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderLineItem, 0)
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.Name, &item.Image,
			&item.UnitPriceMinor, &item.Qty, &item.SubtotalMinor, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *orderRepository) loadHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, actor, note, occurred_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.StatusHistoryEntry, 0)
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		var status string
		if err := rows.Scan(&status, &entry.Actor, &entry.Note, &entry.Occurred); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		entry.Status = domain.OrderStatus(status)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return entries, nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	var status, paymentMethod, paymentStatus, shippingMethod string

	err := row.Scan(
		&order.ID, &order.Number, &order.UserID, &status,
		&order.SubtotalMinor, &order.ShippingMinor, &order.TaxMinor, &order.DiscountMinor, &order.TotalMinor,
		&paymentMethod, &paymentStatus, &shippingMethod,
		&order.ShippingAddress.Line1, &order.ShippingAddress.Line2, &order.ShippingAddress.City,
		&order.ShippingAddress.Region, &order.ShippingAddress.PostalCode, &order.ShippingAddress.Country,
		&order.BillingAddress.Line1, &order.BillingAddress.Line2, &order.BillingAddress.City,
		&order.BillingAddress.Region, &order.BillingAddress.PostalCode, &order.BillingAddress.Country,
		&order.TrackingNumber, &order.Notes, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(paymentMethod)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.ShippingMethod = domain.ShippingMethod(shippingMethod)
	return order, nil
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
