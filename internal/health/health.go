// Package health отдаёт liveness/readiness-пробы и сводный отчёт
// о состоянии зависимостей сервиса.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status — состояние компонента или сервиса в целом.
type Status string

const (
	StatusOK   Status = "ok"
	StatusDown Status = "down"
)

// CheckFunc проверяет один компонент; nil означает, что компонент здоров.
type CheckFunc func() error

// Check — результат одной проверки в сводном отчёте.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

// Report — полный ответ эндпоинта /healthz.
type Report struct {
	Status    Status           `json:"status"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime"`
	CheckedAt time.Time        `json:"checked_at"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Handler выполняет зарегистрированные проверки по запросу.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	version string
	started time.Time
}

// NewHandler создаёт handler без проверок. version попадает в отчёт.
func NewHandler(version string) *Handler {
	return &Handler{
		checks:  make(map[string]CheckFunc),
		version: version,
		started: time.Now(),
	}
}

// Register добавляет проверку компонента под заданным именем.
func (h *Handler) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Handler) snapshot() map[string]CheckFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	return checks
}

func runCheck(check CheckFunc) Check {
	start := time.Now()
	err := check()
	result := Check{
		Status:  StatusOK,
		Latency: time.Since(start).String(),
	}
	if err != nil {
		result.Status = StatusDown
		result.Message = err.Error()
	}
	return result
}

// ServeHTTP отдаёт сводный отчёт; 503 если хотя бы одна проверка упала.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report := Report{
		Status:    StatusOK,
		Version:   h.version,
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
		CheckedAt: time.Now().UTC(),
		Checks:    make(map[string]Check),
	}

	for name, check := range h.snapshot() {
		result := runCheck(check)
		report.Checks[name] = result
		if result.Status == StatusDown {
			report.Status = StatusDown
		}
	}

	code := http.StatusOK
	if report.Status == StatusDown {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// ReadinessHandler — readiness-проба: 200 только когда все проверки проходят.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	for _, check := range h.snapshot() {
		if err := check(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler — liveness-проба, отвечает 200 пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
