package controller

import (
	"encoding/json"
	"strconv"

	"officehours/internal/queue/model"
	"officehours/internal/queue/service"
	"officehours/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RequestController handles help request endpoints.
type RequestController struct {
	lifecycle *service.LifecycleService
	requests  *service.RequestService
}

// NewRequestController creates a new controller.
func NewRequestController(lifecycle *service.LifecycleService, requests *service.RequestService) *RequestController {
	return &RequestController{lifecycle: lifecycle, requests: requests}
}

// SubmitRequest carries request content; its shape is up to the client.
type SubmitRequest struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

// TransitionRequest names the target status.
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// CommentRequest carries comment text.
type CommentRequest struct {
	Text string `json:"text" binding:"required"`
}

// TransitionResponse is the state after a transition.
type TransitionResponse struct {
	RequestID string                  `json:"requestId"`
	Status    model.Status            `json:"status"`
	Noop      bool                    `json:"noop,omitempty"`
	Statuses  map[string]model.Status `json:"statuses"`
	Order     []string                `json:"order,omitempty"`
}

func toTransitionResponse(outcome *model.Outcome) TransitionResponse {
	resp := TransitionResponse{
		RequestID: outcome.RequestID,
		Status:    outcome.To,
		Noop:      outcome.Noop,
		Statuses:  outcome.Statuses,
	}
	if outcome.OrderChanged {
		resp.Order = outcome.Order
		if resp.Order == nil {
			resp.Order = []string{}
		}
	}
	return resp
}

// Submit creates a request or replaces its content. Without a path id a new one is generated.
func (h *RequestController) Submit(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	result, err := h.requests.SubmitOrEdit(c.Request.Context(), c.Param("courseId"), c.Param("requestId"), actor, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Patch merges content fields.
func (h *RequestController) Patch(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var patch model.RequestPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	result, err := h.requests.Patch(c.Request.Context(), c.Param("courseId"), c.Param("requestId"), actor, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Get returns a request with status and comments.
func (h *RequestController) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	view, err := h.requests.Get(c.Request.Context(), c.Param("courseId"), c.Param("requestId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Transition moves a request to the requested status.
func (h *RequestController) Transition(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	outcome, err := h.lifecycle.RequestTransition(c.Request.Context(), c.Param("courseId"), c.Param("requestId"), actor, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toTransitionResponse(outcome))
}

// Claim moves the next waiting request to IN_REVIEW for the caller.
func (h *RequestController) Claim(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	outcome, err := h.lifecycle.ClaimNext(c.Request.Context(), c.Param("courseId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toTransitionResponse(outcome))
}

// Comment appends a comment.
func (h *RequestController) Comment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	comment, err := h.requests.AddComment(c.Request.Context(), c.Param("courseId"), c.Param("requestId"), actor, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, comment)
}

// Events returns the lifecycle timeline.
func (h *RequestController) Events(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	events, err := h.requests.Events(c.Request.Context(), c.Param("courseId"), c.Param("requestId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, events)
}

// History lists the caller's requests in the course.
func (h *RequestController) History(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	views, err := h.requests.History(c.Request.Context(), c.Param("courseId"), actor, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, views)
}

// Order returns the course Order.
func (h *RequestController) Order(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	order, err := h.requests.Order(c.Request.Context(), c.Param("courseId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// Statuses returns the course status map.
func (h *RequestController) Statuses(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	statuses, err := h.requests.Statuses(c.Request.Context(), c.Param("courseId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, statuses)
}
