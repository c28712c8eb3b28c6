package middleware

import (
	"context"
	"strings"

	"officehours/internal/common/auth"
	pkgerrors "officehours/pkg/errors"
	"officehours/pkg/utils/contextkey"
	"officehours/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Authenticate(ctx context.Context, raw string) (auth.Identity, error)
}

// AuthMiddleware enforces JWT validation for protected routes.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth service unavailable")
			return
		}

		token := ExtractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.AbortWithErrorCode(c, pkgerrors.Unauthorized, "missing bearer token")
			return
		}
		identity, err := verifier.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(userIDContextKey, identity.UserID)
		c.Set(userNameContextKey, identity.Name)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, identity.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CurrentIdentity returns the identity set by AuthMiddleware.
func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		return auth.Identity{}, false
	}
	return auth.Identity{UserID: userID, Name: c.GetString(userNameContextKey)}, true
}

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>" header.
func ExtractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
