package model

import (
	"encoding/json"
	"time"
)

// Course is a course's descriptive metadata.
type Course struct {
	CourseID  string          `json:"courseId"`
	Name      string          `json:"name"`
	Location  string          `json:"location"`
	Schedule  json.RawMessage `json:"schedule"`
	Resources json.RawMessage `json:"resources"`
	CreatedBy string          `json:"createdBy,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Membership is one user's role in one course.
type Membership struct {
	CourseID   string `json:"courseId"`
	UserID     string `json:"userId"`
	Role       Role   `json:"role"`
	CourseName string `json:"courseName,omitempty"`
}
