package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/auth"
	"example.com/snapevent/internal/models"
)

// principalKey is the gin context key the auth middleware stores under
const principalKey = "principal"

// TokenAuthenticator resolves API tokens to organizer accounts
type TokenAuthenticator interface {
	GetByToken(ctx context.Context, token string) (*models.User, error)
}

// RequireAuth authenticates Bearer tokens and stores the caller's principal
// on the request context. Requests without a valid token are rejected.
func RequireAuth(users TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		user, err := users.GetByToken(c.Request.Context(), token)
		if err != nil {
			log.Warn().Err(err).Msg("Rejected invalid API token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, auth.Principal{UserID: user.ID, Role: user.Role})
		c.Next()
	}
}

// GetPrincipal returns the authenticated principal, if any
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}
