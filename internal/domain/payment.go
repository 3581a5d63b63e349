package domain

// PaymentMethod описывает выбранный покупателем способ оплаты.
// Интеграции с платёжным провайдером нет: сервис отслеживает только статус.
type PaymentMethod string

const (
	// PaymentMethodCard — оплата банковской картой.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCash — оплата наличными при получении.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodTransfer — банковский перевод.
	PaymentMethodTransfer PaymentMethod = "transfer"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodTransfer:
		return true
	default:
		return false
	}
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — оплата ещё не получена.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid — оплата подтверждена.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed — оплата не прошла.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены покупателю.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Valid проверяет, что статус оплаты поддерживается.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}
