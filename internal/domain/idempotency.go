package domain

import "time"

// IdempotencyStatus — фаза обработки запроса, защищённого idempotency-key.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — первый запрос с ключом ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — запрос выполнен, сохранённый ответ можно воспроизводить.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — запрос завершился детерминированной ошибкой,
	// она тоже воспроизводится повторам.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyRecord связывает idempotency-key с хэшем запроса и
// сохранённым ответом. Повтор с тем же ключом и хэшем воспроизводит
// ответ; повтор с другим хэшем отклоняется.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Status      IdempotencyStatus

	// ResponseBody и HTTPStatus заполняются при переходе в done/failed.
	ResponseBody []byte
	HTTPStatus   int

	// TTLAt — момент, после которого запись можно удалить.
	TTLAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired сообщает, вышла ли запись за срок хранения к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}
