package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newOrderNumber генерирует человекочитаемый номер заказа вида
// ORD-20260830120000-a1b2c3. Суффикс случайный, поэтому столкновения
// возможны; глобальную уникальность гарантирует хранилище, а
// вызывающая сторона повторяет генерацию при конфликте.
func newOrderNumber(now time.Time) (string, error) {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate order number suffix: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), hex.EncodeToString(suffix)), nil
}
