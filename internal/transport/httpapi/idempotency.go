package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	idempotencyHeader         = "Idempotency-Key"
	idempotencyReplayedHeader = "X-Idempotency-Replayed"
	idempotencyKeyTTL         = 24 * time.Hour
)

// responseRecorder буферизует ответ, чтобы сохранить его для повторов
// по тому же ключу идемпотентности.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// withIdempotency превращает повторный запрос с тем же Idempotency-Key
// в воспроизведение сохранённого ответа. Запросы без заголовка
// обрабатываются как обычно.
func (h *Handler) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" || h.idempotency == nil {
			next(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, r, domain.NewValidation("invalid_body", "failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := requestHash(r.Method, r.URL.Path, body)
		_, err = h.idempotency.CreateProcessing(key, hash, time.Now().UTC().Add(idempotencyKeyTTL))
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
			h.replayIdempotent(w, r, key)
			return
		default:
			h.writeError(w, r, err)
			return
		}

		rec := &responseRecorder{ResponseWriter: w}
		next(rec, r)

		mark := h.idempotency.MarkDone
		if rec.status >= http.StatusInternalServerError {
			mark = h.idempotency.MarkFailed
		}
		if err := mark(key, rec.body.Bytes(), rec.status); err != nil {
			h.logger.WithError(err).WithField("idempotency_key", key).
				Warn("failed to store idempotent response")
		}
	}
}

// replayIdempotent отдаёт ранее сохранённый ответ либо сообщает,
// что первый запрос ещё обрабатывается.
func (h *Handler) replayIdempotent(w http.ResponseWriter, r *http.Request, key string) {
	record, err := h.idempotency.Get(key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		h.writeError(w, r, domain.NewConflict(
			"idempotency_in_progress",
			"request with this idempotency key is still being processed",
		))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(idempotencyReplayedHeader, "true")
	w.WriteHeader(record.HTTPStatus)
	if _, err := w.Write(record.ResponseBody); err != nil {
		h.logger.WithError(err).Warn("failed to write replayed response")
	}
}

func requestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{'\n'})
	sum.Write([]byte(path))
	sum.Write([]byte{'\n'})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
