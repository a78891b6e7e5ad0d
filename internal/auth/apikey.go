package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	APIKeyHeader        = "X-API-Key"
	WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// APIKeyMiddleware validates the API key from the X-API-Key header.
// If apiKey is empty, authentication is disabled.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return HeaderTokenMiddleware(APIKeyHeader, apiKey, "API key")
}

// WebhookSecretMiddleware checks the secret token the Bot API attaches to
// every webhook call.
func WebhookSecretMiddleware(secret string) gin.HandlerFunc {
	return HeaderTokenMiddleware(WebhookSecretHeader, secret, "webhook secret")
}

// HeaderTokenMiddleware rejects requests whose header does not carry token.
// An empty token disables the check.
func HeaderTokenMiddleware(header, token, label string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(header)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing " + label,
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid " + label,
			})
			return
		}

		c.Next()
	}
}
