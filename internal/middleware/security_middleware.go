package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ClaudeNdayambaje/payesmart1/internal/auth"
	"github.com/ClaudeNdayambaje/payesmart1/internal/settings"
)

// AuthMiddleware checks if the caller has a valid JWT token
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Get the token from the "Authorization" header
		// Format: "Bearer <token>"
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		// 2. Remove the "Bearer " prefix
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must start with Bearer"})
			c.Abort()
			return
		}

		// 3. Validate the token using our auth package
		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// 4. Store employee info in the context for the next handler
		c.Set("employeeID", claims.EmployeeID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// RequireRole is a secondary guard that checks for specific permissions
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
			c.Abort()
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
		c.Abort()
	}
}

// CheckLicense blocks the API while the terminal's license is missing
// or expired. Activation happens through the unprotected system routes.
func CheckLicense(sf *settings.File) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sf.Get()
		if !s.LicenseActive || time.Now().After(s.LicenseExpires) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "License inactive or expired. Please activate this terminal."})
			c.Abort()
			return
		}
		c.Next()
	}
}
