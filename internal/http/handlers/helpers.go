package handlers

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/http/middleware"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-escrow/internal/validation"
)

var errNoCaller = apperror.New(apperror.ErrCodeUnauthorized, "адрес вызывающего не найден в контексте")

// fail передаёт ошибку в ErrorHandler и прерывает цепочку.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// currentAddress извлекает адрес вызывающего из контекста.
func currentAddress(c *gin.Context) (common.Address, bool) {
	addr, ok := middleware.CurrentAddress(c)
	if !ok {
		fail(c, errNoCaller)
	}
	return addr, ok
}

// paramID разбирает числовой идентификатор из пути.
func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		fail(c, apperror.Reject(apperror.KindInvalidInput, "параметр "+name+" должен быть положительным числом").With("field", name))
		return 0, false
	}
	return id, true
}

// paramAddress разбирает адрес из пути.
func paramAddress(c *gin.Context, name string) (common.Address, bool) {
	addr, err := validation.ParseAddress(name, c.Param(name))
	if err != nil {
		fail(c, err)
		return common.Address{}, false
	}
	return addr, true
}

// bindJSON читает тело запроса. Ошибки биндинга отдаются как invalid-input.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, apperror.Reject(apperror.KindInvalidInput, "некорректное тело запроса").With("cause", err.Error()))
		return false
	}
	return true
}

// queryAddress читает необязательный адрес из query.
func queryAddress(c *gin.Context, name string) (*common.Address, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	addr, err := validation.ParseAddress(name, raw)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return &addr, true
}

// queryInt читает неотрицательное число из query со значением по умолчанию.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		fail(c, apperror.Reject(apperror.KindInvalidInput, "параметр "+name+" должен быть неотрицательным числом").With("field", name))
		return 0, false
	}
	return v, true
}

// bindOptionalJSON читает тело, только если оно передано.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}
