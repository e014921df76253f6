package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const StaffKeyHeader = "X-Staff-Key"

// StaffKey guards privileged routes with the shared staff secret. An empty
// configured key disables the check (dev mode).
func StaffKey(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		if c.GetHeader(StaffKeyHeader) != required {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Staff key required",
				},
			})
			return
		}
		c.Next()
	}
}
