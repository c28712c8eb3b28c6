package controller

import (
	"officehours/internal/common/http/middleware"
	"officehours/internal/queue/service"
	"officehours/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// currentActor returns the authenticated caller, answering 401 when there is none.
func currentActor(c *gin.Context) (service.Actor, bool) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return service.Actor{}, false
	}
	return service.Actor{UserID: identity.UserID, Name: identity.Name}, true
}
