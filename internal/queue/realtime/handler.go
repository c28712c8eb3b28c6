package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"officehours/internal/common/http/middleware"
	"officehours/internal/queue/model"
	"officehours/internal/queue/service"
	pkgerrors "officehours/pkg/errors"
	"officehours/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Resynchronizer authorizes a session for a course and reads its snapshot.
type Resynchronizer interface {
	Authorize(ctx context.Context, courseID string, actor service.Actor) (model.Role, error)
	Snapshot(ctx context.Context, courseID, userID string) (*model.Snapshot, error)
}

// HandlerConfig tunes the websocket endpoint.
type HandlerConfig struct {
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	AuthTimeout    time.Duration `yaml:"authTimeout"`
	SendQueueSize  int           `yaml:"sendQueueSize"`
	FanoutWorkers  int           `yaml:"fanoutWorkers"`
	FanoutQueue    int           `yaml:"fanoutQueue"`
}

// Handler serves the realtime websocket endpoint.
type Handler struct {
	hub      *Hub
	verifier middleware.TokenVerifier
	resync   Resynchronizer
	upgrader websocket.Upgrader
	cfg      HandlerConfig
}

// NewHandler creates the websocket handler.
func NewHandler(hub *Hub, verifier middleware.TokenVerifier, resync Resynchronizer, cfg HandlerConfig) *Handler {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	h := &Handler{hub: hub, verifier: verifier, resync: resync, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(cfg.AllowedOrigins) == 0 {
				return true
			}
			return middleware.IsOriginAllowed(origin, cfg.AllowedOrigins)
		},
	}
	return h
}

// Serve upgrades the request and runs the session until the peer leaves.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Info(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(uuid.NewString(), conn, h.cfg.SendQueueSize)
	go client.writePump()
	defer func() {
		h.hub.Leave(client)
		client.close()
	}()

	ctx := context.WithoutCancel(c.Request.Context())
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.AuthTimeout))
	conn.SetPongHandler(func(string) error {
		if client.UserID == "" {
			return nil
		}
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			logReadError(ctx, client, err)
			return
		}
		if frame.Event != model.EventAuthenticate {
			h.sendError(client, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("unsupported event "+frame.Event))
			continue
		}
		if err := h.authenticate(ctx, client, frame.Data); err != nil {
			h.sendError(client, err)
			if !pkgerrors.GetCode(err).IsClientError() {
				logger.Error(ctx, "realtime handshake failed", zap.String("conn_id", client.ID), zap.Error(err))
				if client.UserID == "" {
					return
				}
			}
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// authenticate verifies the credential, joins the course and user rooms and
// pushes the snapshot. A repeated handshake moves the session to the new course.
func (h *Handler) authenticate(ctx context.Context, client *Client, raw json.RawMessage) error {
	var payload AuthenticatePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Token == "" || payload.CourseID == "" {
		return pkgerrors.BadRequest("token and courseId are required")
	}
	if h.verifier == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable)
	}
	identity, err := h.verifier.Authenticate(ctx, payload.Token)
	if err != nil {
		return err
	}
	actor := service.Actor{UserID: identity.UserID, Name: identity.Name}
	role, err := h.resync.Authorize(ctx, payload.CourseID, actor)
	if err != nil {
		return err
	}

	h.hub.Leave(client)
	client.UserID = identity.UserID
	client.hold()
	defer client.release()
	h.hub.Join(client, model.CourseRoom(payload.CourseID), model.UserRoom(identity.UserID))

	snapshot, err := h.resync.Snapshot(ctx, payload.CourseID, identity.UserID)
	if err != nil {
		return err
	}
	h.send(client, model.EventAuthenticated, AuthenticatedPayload{UserID: identity.UserID, CourseID: payload.CourseID, Role: role.String()})
	h.send(client, model.EventOrderUpdate, snapshot.Order)
	h.send(client, model.EventStatusUpdate, snapshot.Statuses)
	h.send(client, model.EventActiveRequest, snapshot.Active)
	logger.Info(ctx, "realtime session authenticated",
		zap.String("conn_id", client.ID),
		zap.String("user_id", identity.UserID),
		zap.String("course_id", payload.CourseID),
	)
	return nil
}

func (h *Handler) send(client *Client, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	client.push(frame)
}

func (h *Handler) sendError(client *Client, err error) {
	appErr := pkgerrors.GetError(err)
	message := appErr.Error()
	if !appErr.Code.IsClientError() {
		message = appErr.Code.Message()
	}
	h.send(client, model.EventError, ErrorPayload{Code: int(appErr.Code), Message: message})
}

func logReadError(ctx context.Context, client *Client, err error) {
	var netErr net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Debug(ctx, "websocket peer closed", zap.String("conn_id", client.ID))
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Info(ctx, "websocket read timeout", zap.String("conn_id", client.ID), zap.String("user_id", client.UserID))
	default:
		logger.Info(ctx, "websocket read failed", zap.String("conn_id", client.ID), zap.Error(err))
	}
}
