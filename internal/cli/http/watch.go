package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"officehours/internal/queue/realtime"

	"github.com/gorilla/websocket"
)

// WatchURL derives the websocket endpoint from the REST base URL.
func (c *Client) WatchURL(path string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url failed: %w", err)
	}
	switch strings.ToLower(base.Scheme) {
	case "https":
		base.Scheme = "wss"
	case "http", "":
		base.Scheme = "ws"
	}
	base.Path = strings.TrimRight(base.Path, "/") + path
	base.RawQuery = ""
	return base.String(), nil
}

// Watch authenticates against the realtime feed of courseID and passes every
// frame to onFrame until ctx ends or the server closes the connection.
func (c *Client) Watch(ctx context.Context, path, courseID string, onFrame func(realtime.Frame)) error {
	endpoint, err := c.WatchURL(path)
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s failed: %w", endpoint, err)
	}
	defer func() { _ = conn.Close() }()

	token := ""
	if c.tokenProvider != nil {
		token = c.tokenProvider()
	}
	data, err := json.Marshal(realtime.AuthenticatePayload{Token: token, CourseID: courseID})
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(realtime.Frame{Event: "authenticate", Data: data}); err != nil {
		return fmt.Errorf("send authenticate failed: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	})
	defer stop()

	for {
		var frame realtime.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("feed closed: %s", closeErr.Text)
			}
			return fmt.Errorf("read frame failed: %w", err)
		}
		onFrame(frame)
	}
}
