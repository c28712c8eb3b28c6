package model

import "strings"

// Role is a user's standing in one course. The set is open: the transition
// table may define roles beyond the built-in three.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleHelper  Role = "HELPER"
	RoleAdmin   Role = "ADMIN"
)

// NormalizeRole upper-cases a role name.
func NormalizeRole(raw string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(raw)))
}

func (r Role) String() string {
	return string(r)
}
