package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	logging "github.com/ipfs/go-log/v2"

	"promptpot-backend/internal/services"
)

var log = logging.Logger("http")

const (
	ContextAddress = "address"
	ContextRole    = "role"
)

func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			// Browsers cannot set headers on websocket upgrades.
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextAddress, claims.Caller())
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// RequireRole lets through only tokens minted for one of roles. The ledger
// still checks the address itself, so a role only narrows the surface.
func RequireRole(roles ...services.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		c.Abort()
	}
}

// Caller is the address the request was authenticated as.
func Caller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(ContextAddress)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, addr common.Address, action string, limit int, window time.Duration) (bool, error)
}

func RateLimitMiddleware(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, ok := Caller(c)
		if !ok {
			c.Next()
			return
		}

		var action string
		var limit int
		window := time.Minute

		switch {
		case c.Request.Method == http.MethodPost && strings.HasSuffix(c.Request.URL.Path, "/attempts"):
			action = "attempt"
			limit = services.DefaultRateLimitAttempts
		case strings.HasSuffix(c.Request.URL.Path, "/refund"):
			action = "refund"
			limit = services.DefaultRateLimitRefunds
		default:
			c.Next()
			return
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), addr, action, limit, window)
		if err != nil {
			log.Warnw("rate limit check failed", "address", addr.Hex(), "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
