package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"datasethub/internal/pkg/jwtutil"
	"datasethub/internal/transport/http/response"
)

const (
	ContextUIDKey      = "uid"
	ContextUsernameKey = "username"
)

// Identity resolves the caller's uid from a bearer token when one is
// presented. Requests without a token pass through untouched and may carry
// an explicit uid form field instead; a token that is present but invalid is
// rejected.
func Identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.Next()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUIDKey, claims.UID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}
