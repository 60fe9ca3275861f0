package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader заголовок с ключом доступа к служебным маршрутам.
const APIKeyHeader = "X-API-Key"

// AuthMiddleware проверяет наличие и валидность API Key в заголовке X-API-Key.
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Пустой ключ отключает авторизацию (локальная разработка).
		if apiKey == "" {
			c.Next()
			return
		}

		key := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
			return
		}

		c.Next()
	}
}
