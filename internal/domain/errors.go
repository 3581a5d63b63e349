package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind классифицирует доменные ошибки; транспортный слой отображает
// kind в код ответа (validation → 400, not_found → 404, conflict → 409,
// internal → 500).
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindInternal   ErrorKind = "internal"
)

// Error — типизированная доменная ошибка со стабильным машинным кодом
// и человекочитаемым сообщением. Details несёт контекст для клиента:
// идентификатор конфликтного товара, список допустимых переходов.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]string
	// Err — исходная причина (для internal-ошибок хранилища/транспорта).
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidation создаёт ошибку некорректного входа.
func NewValidation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// NewNotFound создаёт ошибку отсутствующей сущности.
func NewNotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// NewConflict создаёт ошибку конфликта состояния.
func NewConflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// NewInternal оборачивает неожиданную ошибку хранилища или транспорта.
func NewInternal(code, message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: code, Message: message, Err: err}
}

// KindOf возвращает kind ошибки; необёрнутые ошибки считаются internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound проверяет, является ли ошибка отсутствием сущности.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict проверяет, является ли ошибка конфликтом.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

var (
	// Ошибки инвариантов заказа.
	ErrUserRequired            = NewValidation("user_required", "user_id is required")
	ErrOrderNumberRequired     = NewValidation("order_number_required", "order number is required")
	ErrItemsRequired           = NewValidation("items_required", "order must contain at least one item")
	ErrItemQtyInvalid          = NewValidation("item_qty_invalid", "item qty must be greater than zero")
	ErrItemPriceInvalid        = NewValidation("item_price_invalid", "item price must be non-negative")
	ErrItemSubtotalMismatch    = NewValidation("item_subtotal_mismatch", "item subtotal does not match price and qty")
	ErrSubtotalMismatch        = NewValidation("subtotal_mismatch", "order subtotal does not match items sum")
	ErrTotalMismatch           = NewValidation("total_mismatch", "order total does not match subtotal, shipping, tax and discount")
	ErrTotalNegative           = NewValidation("total_negative", "order total must be non-negative")
	ErrDiscountNegative        = NewValidation("discount_negative", "discount must be non-negative")
	ErrShippingMethodInvalid   = NewValidation("shipping_method_invalid", "shipping method is not supported")
	ErrPaymentMethodInvalid    = NewValidation("payment_method_invalid", "payment method is not supported")
	ErrPaymentStatusInvalid    = NewValidation("payment_status_invalid", "payment status is not supported")
	ErrShippingAddressRequired = NewValidation("shipping_address_required", "shipping address is required")
	ErrHistoryOutOfSync        = NewValidation("history_out_of_sync", "last status history entry does not match order status")
	ErrStatusInvalid           = NewValidation("status_invalid", "order status is not supported")

	// Ошибки отсутствующих сущностей.
	ErrOrderNotFound = NewNotFound("order_not_found", "order not found")
	ErrUserNotFound  = NewNotFound("user_not_found", "user not found")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = NewConflict("order_version_conflict", "order version conflict")
	// ErrOrderNumberTaken — сгенерированный номер заказа уже занят.
	ErrOrderNumberTaken = NewConflict("order_number_taken", "order number already exists")

	// Ошибки idempotency-слоя.
	ErrIdempotencyKeyRequired         = NewValidation("idempotency_key_required", "idempotency key is required")
	ErrIdempotencyRequestHashRequired = NewValidation("idempotency_request_hash_required", "idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = NewNotFound("idempotency_key_not_found", "idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = NewConflict("idempotency_key_exists", "idempotency key already exists")
	ErrIdempotencyHashMismatch        = NewConflict("idempotency_hash_mismatch", "idempotency key is already used with different request payload")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = NewInternal("outbox_publish_failed", "outbox publish failed", nil)
)

// NewProductNotFound создаёт not_found-ошибку с указанием товара.
func NewProductNotFound(productID string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    "product_not_found",
		Message: fmt.Sprintf("product %s not found", productID),
		Details: map[string]string{"product_id": productID},
	}
}

// NewInsufficientStock создаёт conflict-ошибку, называя первый товар,
// для которого не хватило остатка.
func NewInsufficientStock(productID string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    "insufficient_stock",
		Message: fmt.Sprintf("insufficient stock for product %s", productID),
		Details: map[string]string{"product_id": productID},
	}
}

// NewInvalidTransition создаёт conflict-ошибку с перечнем допустимых
// следующих статусов.
func NewInvalidTransition(from, to OrderStatus) *Error {
	allowed := AllowedNext(from)
	names := make([]string, 0, len(allowed))
	for _, s := range allowed {
		names = append(names, string(s))
	}
	list := strings.Join(names, ", ")
	if list == "" {
		list = "none"
	}
	return &Error{
		Kind:    KindConflict,
		Code:    "invalid_transition",
		Message: fmt.Sprintf("cannot transition order from %s to %s (allowed: %s)", from, to, list),
		Details: map[string]string{
			"from":    string(from),
			"to":      string(to),
			"allowed": list,
		},
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// JoinErrors собирает список замечаний в одну ошибку валидации.
func JoinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return NewValidation("invalid_order", strings.Join(parts, "; "))
}
