package realtime

import (
	"encoding/json"
)

// Frame is the JSON envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AuthenticatePayload is the body of the client's authenticate frame.
type AuthenticatePayload struct {
	Token    string `json:"token"`
	CourseID string `json:"courseId"`
}

// AuthenticatedPayload acknowledges a successful handshake.
type AuthenticatedPayload struct {
	UserID   string `json:"userId"`
	CourseID string `json:"courseId"`
	Role     string `json:"role"`
}

// ErrorPayload reports a rejected client frame.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
