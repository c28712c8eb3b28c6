package model

import (
	"encoding/json"
	"time"
)

// Request is a help request's content record. Its status lives in the
// course status map, not here.
type Request struct {
	CourseID    string          `json:"courseId"`
	RequestID   string          `json:"requestId"`
	CreatorID   string          `json:"creatorId"`
	CreatorName string          `json:"creatorName"`
	HelperID    string          `json:"helperId,omitempty"`
	HelperName  string          `json:"helperName,omitempty"`
	Content     json.RawMessage `json:"content"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	// ClosedAt is set once the request has been closed.
	ClosedAt *time.Time `json:"closedAt,omitempty"`
}

// IsClosed reports whether the request has a closed history.
func (r *Request) IsClosed() bool {
	return r != nil && r.ClosedAt != nil
}

// HasHelper reports whether a helper has been stamped.
func (r *Request) HasHelper() bool {
	return r != nil && r.HelperID != ""
}

// Comment is one append-only note on a request.
type Comment struct {
	CommentID  string    `json:"commentId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RequestView is a request with its effective status and comments.
type RequestView struct {
	*Request
	Status   Status    `json:"status"`
	Comments []Comment `json:"comments"`
}

// RequestPatch carries a partial content update; fields replace the stored
// top-level content keys of the same name.
type RequestPatch map[string]json.RawMessage
