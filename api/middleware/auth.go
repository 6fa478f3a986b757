// api/middleware/auth.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Context keys
const (
	UserIDContextKey   = "user_id"
	UsernameContextKey = "username"
)

// Claims are the token claims the accounts service issues. This service
// only verifies them; it never mints tokens.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTAuth middleware validates viewer tokens from the Authorization header.
// Websocket clients cannot set headers from the browser, so a "token"
// query parameter is accepted as a fallback.
func JWTAuth(secret string, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			log.WithError(err).Warn("Invalid viewer token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		if claims.UserID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(UserIDContextKey, claims.UserID)
		c.Set(UsernameContextKey, claims.Username)

		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

// UserIDFromContext retrieves the authenticated user id from the context
func UserIDFromContext(c *gin.Context) (uint, error) {
	val, exists := c.Get(UserIDContextKey)
	if !exists {
		return 0, errors.New("user id not found in context")
	}

	userID, ok := val.(uint)
	if !ok {
		return 0, errors.New("user id in context has incorrect type")
	}

	return userID, nil
}
