package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-escrow/internal/logger"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// ErrorResponse это тело ответа с ошибкой.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Kind    apperror.Kind    `json:"kind,omitempty"`
	Details apperror.Details `json:"details,omitempty"`
}

// ErrorHandler превращает ошибки из c.Errors в JSON ответ.
// Доменные отказы отдаются клиенту как есть, внутренние маскируются.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, body := Render(err)

		fields := logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"status": status,
		}
		if id := c.GetString(ContextRequestIDKey); id != "" {
			fields["request_id"] = id
		}
		if status >= http.StatusInternalServerError {
			logger.WithFields(fields).Error("Request error")
		} else {
			logger.WithFields(fields).Info("Request rejected")
		}

		c.JSON(status, body)
	}
}

// Render выбирает статус и тело для ошибки.
func Render(err error) (int, ErrorResponse) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorResponse{Error: "внутренняя ошибка сервера"}
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if appErr.Code == apperror.ErrCodeInternal || appErr.Code == apperror.ErrCodeDatabaseError {
		return status, ErrorResponse{Error: "внутренняя ошибка сервера", Kind: appErr.Kind}
	}
	return status, ErrorResponse{Error: appErr.Message, Kind: appErr.Kind, Details: appErr.Details}
}
