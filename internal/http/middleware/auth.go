// README: Bearer-token auth middleware and role guard.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rxflow/internal/infra"
)

const (
	ctxUID  = "caller_uid"
	ctxRole = "caller_role"
)

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter when allowQuery is set (browser sockets cannot
// send headers).
func BearerToken(c *gin.Context, allowQuery bool) string {
	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	if raw != "" {
		parts := strings.SplitN(raw, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}

// Auth verifies the bearer token and stores the caller's uid and role.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return authenticate(verifier, false)
}

// SocketAuth is Auth that also accepts ?token= for websocket upgrades.
func SocketAuth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return authenticate(verifier, true)
}

func authenticate(verifier infra.TokenVerifier, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := BearerToken(c, allowQuery)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, token.Role())
		c.Next()
	}
}

// RequireRoles rejects callers whose role is not listed. Must run after Auth.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
