package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
)

const (
	// Context keys for user data
	ContextKeyUser   = "auth_user"
	ContextKeyClaims = "auth_claims"
)

// bearerToken extracts the token from the Authorization header
func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware validates the Bearer access token and resolves the account.
// With allowQuery the token may also arrive as ?token=, which browsers need
// for WebSocket upgrades.
func Middleware(jwtManager *JWTManager, users database.UserStore, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" && allowQuery {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			apperror.Abort(c, ErrMissingToken)
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString, TokenTypeAccess)
		if err != nil {
			apperror.Abort(c, err)
			return
		}

		user, err := users.UserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		if user == nil {
			apperror.Abort(c, ErrUserNotFound)
			return
		}
		if !user.IsActive {
			apperror.Abort(c, ErrAccountDisabled)
			return
		}

		c.Set(ContextKeyUser, user)
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireAdmin middleware ensures the user is an admin
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin {
			apperror.Abort(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the account resolved by Middleware, or nil
func CurrentUser(c *gin.Context) *database.User {
	if v, ok := c.Get(ContextKeyUser); ok {
		if user, ok := v.(*database.User); ok {
			return user
		}
	}
	return nil
}

// GetClaims returns the validated access token claims, or nil
func GetClaims(c *gin.Context) *Claims {
	if v, ok := c.Get(ContextKeyClaims); ok {
		if claims, ok := v.(*Claims); ok {
			return claims
		}
	}
	return nil
}
