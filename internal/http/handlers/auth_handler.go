package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/dto"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/validation"
)

// TokenIssuer выпускает access токены на адрес.
type TokenIssuer interface {
	Issue(addr common.Address) (*service.AccessToken, error)
}

// AuthHandler выдаёт токены. Проверка владения адресом выполняется внешним шлюзом,
// поэтому выдача по запросу доступна только в окружении разработки.
type AuthHandler struct {
	tokens TokenIssuer
	sys    *service.System
}

func NewAuthHandler(tokens TokenIssuer, sys *service.System) *AuthHandler {
	return &AuthHandler{tokens: tokens, sys: sys}
}

// DevToken POST /auth/dev-token
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req dto.DevTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	addr, err := validation.ParseAddress("address", req.Address)
	if err != nil {
		fail(c, err)
		return
	}
	token, err := h.tokens.Issue(addr)
	if err != nil {
		fail(c, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить токен"))
		return
	}
	c.JSON(http.StatusOK, dto.NewTokenResponse(token))
}

// Me GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	roles, err := h.sys.Roles(c.Request.Context(), caller)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": caller, "roles": dto.NewList(roles).Items})
}
