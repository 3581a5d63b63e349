// Package pricing выполняет чистый расчёт стоимости заказа: subtotal,
// доставка, налог и итог. Никаких обращений к сети или хранилищу —
// движок тестируется на простых числовых входах.
package pricing

import "github.com/vladislavdragonenkov/fulfillment/internal/domain"

const (
	// basisPointsScale — знаменатель ставки налога в базисных пунктах.
	basisPointsScale = 10000

	defaultTaxRateBP               = 1600
	defaultStandardFeeMinor        = 500
	defaultExpressFeeMinor         = 1500
	defaultOvernightFeeMinor       = 3000
	defaultFreeShippingMinor int64 = 50000
)

// Config задаёт тарифы движка. Все ставки — конфигурация деплоймента,
// не зашитая логика.
type Config struct {
	// TaxRateBP — ставка налога в базисных пунктах (1600 = 16%).
	TaxRateBP int64
	// StandardFeeMinor — ставка обычной доставки ниже порога.
	StandardFeeMinor int64
	// ExpressFeeMinor — фиксированная ставка ускоренной доставки.
	ExpressFeeMinor int64
	// OvernightFeeMinor — фиксированная ставка доставки на следующий день.
	OvernightFeeMinor int64
	// FreeShippingThresholdMinor — порог корзины, выше которого
	// обычная доставка бесплатна.
	FreeShippingThresholdMinor int64
}

// DefaultConfig возвращает тарифы по умолчанию.
func DefaultConfig() Config {
	return Config{
		TaxRateBP:                  defaultTaxRateBP,
		StandardFeeMinor:           defaultStandardFeeMinor,
		ExpressFeeMinor:            defaultExpressFeeMinor,
		OvernightFeeMinor:          defaultOvernightFeeMinor,
		FreeShippingThresholdMinor: defaultFreeShippingMinor,
	}
}

// Totals — результат расчёта в минимальных денежных единицах.
type Totals struct {
	SubtotalMinor int64
	ShippingMinor int64
	TaxMinor      int64
	DiscountMinor int64
	TotalMinor    int64
}

// Engine — детерминированный калькулятор стоимости заказа.
type Engine struct {
	cfg Config
}

// NewEngine создаёт движок с заданными тарифами. Отрицательные ставки
// заменяются тарифами по умолчанию; нулевая ставка — легальный тариф
// (бесплатная доставка, нулевой налог).
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.TaxRateBP < 0 {
		cfg.TaxRateBP = def.TaxRateBP
	}
	if cfg.StandardFeeMinor < 0 {
		cfg.StandardFeeMinor = def.StandardFeeMinor
	}
	if cfg.ExpressFeeMinor < 0 {
		cfg.ExpressFeeMinor = def.ExpressFeeMinor
	}
	if cfg.OvernightFeeMinor < 0 {
		cfg.OvernightFeeMinor = def.OvernightFeeMinor
	}
	if cfg.FreeShippingThresholdMinor <= 0 {
		cfg.FreeShippingThresholdMinor = def.FreeShippingThresholdMinor
	}
	return &Engine{cfg: cfg}
}

// Quote рассчитывает стоимость по снимкам позиций и способу доставки.
// discountMinor валидируется: скидка не может быть отрицательной или
// опускать итог ниже нуля.
func (e *Engine) Quote(items []domain.OrderLineItem, method domain.ShippingMethod, discountMinor int64) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, domain.ErrItemsRequired
	}
	if !method.Valid() {
		return Totals{}, domain.ErrShippingMethodInvalid
	}
	if discountMinor < 0 {
		return Totals{}, domain.ErrDiscountNegative
	}

	var subtotal int64
	for _, item := range items {
		if item.Qty <= 0 {
			return Totals{}, domain.ErrItemQtyInvalid
		}
		if item.UnitPriceMinor < 0 {
			return Totals{}, domain.ErrItemPriceInvalid
		}
		subtotal += int64(item.Qty) * item.UnitPriceMinor
	}

	shipping := e.shippingFee(method, subtotal)
	tax := taxOf(subtotal, e.cfg.TaxRateBP)

	total := subtotal + shipping + tax - discountMinor
	if total < 0 {
		return Totals{}, domain.ErrTotalNegative
	}

	return Totals{
		SubtotalMinor: subtotal,
		ShippingMinor: shipping,
		TaxMinor:      tax,
		DiscountMinor: discountMinor,
		TotalMinor:    total,
	}, nil
}

// shippingFee возвращает стоимость доставки по тарифной сетке.
func (e *Engine) shippingFee(method domain.ShippingMethod, subtotal int64) int64 {
	switch method {
	case domain.ShippingMethodPickup:
		return 0
	case domain.ShippingMethodExpress:
		return e.cfg.ExpressFeeMinor
	case domain.ShippingMethodOvernight:
		return e.cfg.OvernightFeeMinor
	default: // standard
		if subtotal > e.cfg.FreeShippingThresholdMinor {
			return 0
		}
		return e.cfg.StandardFeeMinor
	}
}

// taxOf считает налог в минимальных единицах с округлением half-up,
// чтобы результат был детерминированным без плавающей точки.
func taxOf(subtotalMinor, rateBP int64) int64 {
	if rateBP <= 0 || subtotalMinor <= 0 {
		return 0
	}
	return (subtotalMinor*rateBP + basisPointsScale/2) / basisPointsScale
}
