package controller

import (
	"context"
	"net/http"

	"officehours/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

// RateLimits holds the policies for the mutating queue routes.
type RateLimits struct {
	Transition middleware.RateLimitPolicy `yaml:"transition"`
	Claim      middleware.RateLimitPolicy `yaml:"claim"`
	Submit     middleware.RateLimitPolicy `yaml:"submit"`
}

// RouterDeps wires the HTTP surface.
type RouterDeps struct {
	Verifier middleware.TokenVerifier
	Limiter  middleware.Limiter
	Limits   RateLimits
	CORS     middleware.CORSConfig
	Requests *RequestController
	Courses  *CourseController
	Auth     *AuthController
	Realtime gin.HandlerFunc

	// Health reports dependency readiness for /healthz.
	Health func(ctx context.Context) error
}

// NewRouter builds the gin engine serving the queue API.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.AccessLogMiddleware())
	router.Use(middleware.CORSMiddleware(deps.CORS))

	router.GET("/healthz", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Realtime != nil {
		router.GET("/ws", deps.Realtime)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(deps.Verifier))

	if deps.Auth != nil {
		api.POST("/auth/logout", deps.Auth.Logout)
	}

	courses := api.Group("/courses")
	courses.GET("", deps.Courses.List)
	courses.GET("/:courseId", deps.Courses.Get)
	courses.PUT("/:courseId", deps.Courses.Put)
	courses.POST("/:courseId/join", deps.Courses.Join)
	courses.POST("/:courseId/members", deps.Courses.Grant)

	courses.GET("/:courseId/history", deps.Requests.History)
	courses.GET("/:courseId/order", deps.Requests.Order)
	courses.GET("/:courseId/statuses", deps.Requests.Statuses)
	courses.POST("/:courseId/claim",
		limit(deps.Limiter, "claim", deps.Limits.Claim),
		deps.Requests.Claim,
	)

	submit := limit(deps.Limiter, "submit", deps.Limits.Submit)
	courses.POST("/:courseId/requests", submit, deps.Requests.Submit)
	courses.PUT("/:courseId/requests/:requestId", submit, deps.Requests.Submit)
	courses.PATCH("/:courseId/requests/:requestId", deps.Requests.Patch)
	courses.GET("/:courseId/requests/:requestId", deps.Requests.Get)
	courses.POST("/:courseId/requests/:requestId/status",
		limit(deps.Limiter, "transition", deps.Limits.Transition),
		deps.Requests.Transition,
	)
	courses.POST("/:courseId/requests/:requestId/comments", deps.Requests.Comment)
	courses.GET("/:courseId/requests/:requestId/events", deps.Requests.Events)

	return router
}

func limit(limiter middleware.Limiter, routeKey string, policy middleware.RateLimitPolicy) gin.HandlerFunc {
	if limiter == nil || (policy.UserMax <= 0 && policy.IPMax <= 0) {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimitMiddleware(limiter, routeKey, policy)
}
