package middleware

import (
	"errors"
	"strings"

	"taskops/internal/auth"
	"taskops/internal/httpx"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// bearerToken extracts the token from an Authorization header
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// AuthRequired validates the bearer token and stores the operator's
// identity (uid, username, role) on the request context for handlers
// downstream
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing or malformed authorization header"))
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				httpx.FailErr(c, httpx.ErrTokenExpired(""))
			} else {
				httpx.FailErr(c, httpx.ErrInvalidToken(""))
			}
			c.Abort()
			return
		}

		c.Set("uid", claims.UID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}
