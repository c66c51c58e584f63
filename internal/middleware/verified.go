package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/services"
)

// RequireVerified — пускает в чат только пользователей с подтверждённым email.
func RequireVerified(users services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get("user_id")
		userID, isInt := v.(int)
		if !ok || !isInt {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		user, err := users.GetUserByID(userID)
		if err != nil || user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if !user.Verified {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Email not verified"})
			return
		}
		c.Next()
	}
}
