package middleware

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// IDValidator проверяет, что параметр является положительным числовым идентификатором.
// Использование: router.GET("/bounties/:id", IDValidator("id"), handler.GetBounty)
func IDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param(paramName), 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "параметр " + paramName + " должен быть положительным числом",
				"kind":  "invalid-input",
			})
			return
		}
		c.Next()
	}
}

// AddressValidator проверяет, что параметр является hex адресом.
func AddressValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !common.IsHexAddress(c.Param(paramName)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "параметр " + paramName + " должен быть адресом",
				"kind":  "invalid-address",
			})
			return
		}
		c.Next()
	}
}
