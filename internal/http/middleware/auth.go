package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// ContextAddressKey это ключ адреса вызывающего в gin.Context.
const ContextAddressKey = "address"

// TokenParser проверяет access токен и возвращает адрес владельца.
type TokenParser interface {
	ParseAccess(token string) (common.Address, error)
}

// AuthMiddleware проверяет JWT access токен и кладёт адрес в контекст.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация", "kind": "unauthorized"})
			return
		}

		address, err := tokens.ParseAccess(strings.TrimPrefix(auth, "Bearer "))
		if err != nil || address == (common.Address{}) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "токен невалиден", "kind": "unauthorized"})
			return
		}

		c.Set(ContextAddressKey, address)
		c.Next()
	}
}

// CurrentAddress возвращает адрес, установленный AuthMiddleware.
func CurrentAddress(c *gin.Context) (common.Address, bool) {
	raw, ok := c.Get(ContextAddressKey)
	if !ok {
		return common.Address{}, false
	}
	address, ok := raw.(common.Address)
	return address, ok
}
