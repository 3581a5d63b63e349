package domain

// Product — товар каталога, внешняя сущность. Сервис фулфилмента читает
// и мутирует её только через CatalogAccessor; цена и название
// копируются в снимок позиции при оформлении заказа.
type Product struct {
	ID string
	// Name и Image — текущие каталожные значения, не снимок.
	Name  string
	Image string
	// PriceMinor — актуальная цена в минимальных денежных единицах.
	PriceMinor int64
	// Stock — доступный остаток; никогда не бывает отрицательным.
	Stock int32
	// SalesCount — счётчик продаж, растёт при резервировании.
	SalesCount int32
}
