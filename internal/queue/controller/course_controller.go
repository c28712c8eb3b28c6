package controller

import (
	"officehours/internal/queue/service"
	"officehours/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// CourseController handles course and membership endpoints.
type CourseController struct {
	courses *service.CourseService
}

// NewCourseController creates a new controller.
func NewCourseController(courses *service.CourseService) *CourseController {
	return &CourseController{courses: courses}
}

// GrantRequest assigns role to a user.
type GrantRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// List returns the caller's courses.
func (h *CourseController) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	memberships, err := h.courses.List(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, memberships)
}

// Get returns course metadata.
func (h *CourseController) Get(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}
	course, err := h.courses.Get(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, course)
}

// Put creates or updates course metadata.
func (h *CourseController) Put(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.CourseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	course, err := h.courses.Put(c.Request.Context(), c.Param("courseId"), actor, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, course)
}

// Join enrolls the caller as a student.
func (h *CourseController) Join(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	membership, err := h.courses.Join(c.Request.Context(), c.Param("courseId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, membership)
}

// Grant sets another user's role.
func (h *CourseController) Grant(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	membership, err := h.courses.Grant(c.Request.Context(), c.Param("courseId"), actor, req.UserID, req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, membership)
}
