package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в сервисе фулфилмента.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сток зарезервирован, подтверждение ещё не получено.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ подтверждён и принят в работу.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ комплектуется на складе.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до доставки; резерв стока возвращён.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned — доставленный заказ возвращён покупателем.
	OrderStatusReturned OrderStatus = "returned"
)

// ShippingMethod задаёт способ доставки, от которого зависит стоимость.
type ShippingMethod string

const (
	// ShippingMethodPickup — самовывоз, бесплатно.
	ShippingMethodPickup ShippingMethod = "pickup"
	// ShippingMethodStandard — обычная доставка; бесплатна выше порога корзины.
	ShippingMethodStandard ShippingMethod = "standard"
	// ShippingMethodExpress — ускоренная доставка с фиксированной ставкой.
	ShippingMethodExpress ShippingMethod = "express"
	// ShippingMethodOvernight — доставка на следующий день.
	ShippingMethodOvernight ShippingMethod = "overnight"
)

// Valid проверяет, что способ доставки поддерживается.
func (m ShippingMethod) Valid() bool {
	switch m {
	case ShippingMethodPickup, ShippingMethodStandard, ShippingMethodExpress, ShippingMethodOvernight:
		return true
	default:
		return false
	}
}

// OrderLineItem — неизменяемый снимок позиции на момент оформления заказа.
// Поля снимка не обновляются, даже если товар в каталоге позже
// переименуют или переоценят: исторические заказы не мутируют.
type OrderLineItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductID — ссылка на товар в каталоге.
	ProductID string
	// Name — название товара на момент заказа.
	Name string
	// Image — ссылка на изображение товара на момент заказа.
	Image string
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	// Qty — количество единиц, всегда >= 1.
	Qty int32
	// SubtotalMinor == UnitPriceMinor * Qty, вычисляется при снимке.
	SubtotalMinor int64
	// CreatedAt фиксирует момент снимка.
	CreatedAt time.Time
}

// StatusHistoryEntry — одна запись в append-only истории статусов заказа.
type StatusHistoryEntry struct {
	Status OrderStatus
	// Actor — кто выполнил переход; пустая строка означает систему.
	Actor string
	// Note — опциональный комментарий к переходу.
	Note     string
	Occurred time.Time
}

// Address хранит адрес доставки или выставления счёта.
type Address struct {
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Empty сообщает, заполнен ли адрес хотя бы частично.
func (a Address) Empty() bool {
	return a.Line1 == "" && a.City == "" && a.PostalCode == "" && a.Country == ""
}

// Order агрегирует состояние заказа, его позиции и историю статусов.
type Order struct {
	ID string
	// Number — человекочитаемый номер заказа, глобально уникален.
	Number string
	UserID string
	Status OrderStatus
	Items  []OrderLineItem

	SubtotalMinor int64
	ShippingMinor int64
	TaxMinor      int64
	DiscountMinor int64
	TotalMinor    int64

	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	ShippingMethod ShippingMethod

	ShippingAddress Address
	BillingAddress  Address
	TrackingNumber  string
	Notes           string

	// StatusHistory пополняется только в конец; последняя запись
	// всегда совпадает с текущим Status.
	StatusHistory []StatusHistoryEntry

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// orderTransitions задаёт явный граф допустимых переходов статусов.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusReturned},
	OrderStatusCancelled:  {},
	OrderStatusReturned:   {},
}

// ValidStatus проверяет, относится ли значение к известным статусам.
func ValidStatus(s OrderStatus) bool {
	_, ok := orderTransitions[s]
	return ok
}

// AllowedNext возвращает статусы, достижимые из from за один переход.
func AllowedNext(from OrderStatus) []OrderStatus {
	next := orderTransitions[from]
	result := make([]OrderStatus, len(next))
	copy(result, next)
	return result
}

// CanTransition сообщает, разрешён ли переход from → to.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, является ли статус терминальным: из cancelled и
// returned переходов нет.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// CanBeCancelled — заказ отменяем, пока не передан в доставку.
func (o *Order) CanBeCancelled() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing:
		return true
	default:
		return false
	}
}

// IsCompleted — заказ считается выполненным после доставки.
func (o *Order) IsCompleted() bool {
	return o.Status == OrderStatusDelivered
}

// ItemCount возвращает суммарное количество единиц товара в заказе.
func (o *Order) ItemCount() int32 {
	var total int32
	for _, item := range o.Items {
		total += item.Qty
	}
	return total
}

// AppendStatus добавляет запись в историю и синхронизирует текущий статус.
func (o *Order) AppendStatus(entry StatusHistoryEntry) {
	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}
	o.StatusHistory = append(o.StatusHistory, entry)
	o.Status = entry.Status
	o.UpdatedAt = entry.Occurred
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.Number == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.ShippingMethod.Valid() {
		errs = append(errs, ErrShippingMethodInvalid)
	}
	if o.ShippingAddress.Empty() {
		errs = append(errs, ErrShippingAddressRequired)
	}
	if o.DiscountMinor < 0 {
		errs = append(errs, ErrDiscountNegative)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}

	// Сверяем сумму позиций с subtotal: qty * unit price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.SubtotalMinor != int64(item.Qty)*item.UnitPriceMinor {
			errs = append(errs, ErrItemSubtotalMismatch)
		}
		calc += int64(item.Qty) * item.UnitPriceMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrSubtotalMismatch)
	}
	if o.SubtotalMinor+o.ShippingMinor+o.TaxMinor-o.DiscountMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	if len(o.StatusHistory) > 0 && o.StatusHistory[len(o.StatusHistory)-1].Status != o.Status {
		errs = append(errs, ErrHistoryOutOfSync)
	}

	return errs
}
