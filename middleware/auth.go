// middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"nomadpi/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuthMiddleware requires a bearer token signed with secret and stores its
// subject in the context as "userID".
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Error: "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		userID, err := utils.ExtractIDFromToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Error: "Invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
