package controller

import (
	"context"

	"officehours/internal/common/http/middleware"
	"officehours/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// TokenRevoker invalidates an access token before it expires.
type TokenRevoker interface {
	Revoke(ctx context.Context, raw string) error
}

// AuthController handles session endpoints. Tokens are issued by the identity provider.
type AuthController struct {
	revoker TokenRevoker
}

// NewAuthController creates a new controller.
func NewAuthController(revoker TokenRevoker) *AuthController {
	return &AuthController{revoker: revoker}
}

// Logout revokes the bearer token of the request.
func (h *AuthController) Logout(c *gin.Context) {
	token := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		response.Unauthorized(c, "missing bearer token")
		return
	}
	if err := h.revoker.Revoke(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Logout success", nil)
}
