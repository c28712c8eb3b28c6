package model

import "time"

// Realtime event names.
const (
	EventOrderUpdate   = "orderUpdate"
	EventStatusUpdate  = "statusUpdate"
	EventActiveRequest = "activeRequest"
	EventError         = "error"
	EventAuthenticated = "authenticated"
	EventAuthenticate  = "authenticate"
)

// CourseRoom is the room every member of a course joins.
func CourseRoom(courseID string) string {
	return "course:" + courseID
}

// UserRoom is the per-user room.
func UserRoom(userID string) string {
	return "user:" + userID
}

// OrderUpdate carries the full Order of a course.
type OrderUpdate struct {
	CourseID string   `json:"courseId"`
	Order    []string `json:"order"`
}

// StatusUpdate carries the full status map of a course.
type StatusUpdate struct {
	CourseID string            `json:"courseId"`
	Statuses map[string]Status `json:"statuses"`
}

// ActiveRequest names the user's live request; an empty RequestID clears it.
type ActiveRequest struct {
	UserID    string `json:"userId"`
	RequestID string `json:"requestId"`
}

// LifecycleEvent is the audit record of one applied transition.
type LifecycleEvent struct {
	EventID   string    `json:"eventId"`
	CourseID  string    `json:"courseId"`
	RequestID string    `json:"requestId"`
	ActorID   string    `json:"actorId"`
	ActorRole Role      `json:"actorRole"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	At        time.Time `json:"at"`
}
