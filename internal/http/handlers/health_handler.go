package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/ledger"
)

// Pinger проверяет доступность базы.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Auditor пересчитывает баланс эскроу.
type Auditor interface {
	Audit() ledger.AuditReport
}

// HealthHandler предоставляет endpoint для проверки здоровья сервиса.
type HealthHandler struct {
	db      Pinger
	auditor Auditor
	now     func() time.Time
}

// NewHealthHandler создаёт health handler. db может быть nil.
func NewHealthHandler(db Pinger, auditor Auditor) *HealthHandler {
	return &HealthHandler{db: db, auditor: auditor, now: time.Now}
}

// HealthResponse представляет ответ health check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health обрабатывает GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	// Нарушение баланса эскроу делает сервис нездоровым
	if h.auditor != nil {
		if h.auditor.Audit().Balanced {
			checks["ledger"] = "balanced"
		} else {
			checks["ledger"] = "unhealthy: conservation violated"
			status = "unhealthy"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: h.now(),
		Checks:    checks,
	})
}
