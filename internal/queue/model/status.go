package model

import "strings"

// Status is the lifecycle state of a help request.
type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusPending     Status = "PENDING"
	StatusInReview    Status = "IN_REVIEW"
	StatusServing     Status = "SERVING"
	StatusNeedsUpdate Status = "NEEDS_UPDATE"
	StatusUpdated     Status = "UPDATED"
	StatusResolved    Status = "RESOLVED"
	StatusClosed      Status = "CLOSED"
	StatusLeft        Status = "LEFT"
)

// AllStatuses lists every recognized status in lifecycle order.
var AllStatuses = []Status{
	StatusCreated,
	StatusPending,
	StatusInReview,
	StatusServing,
	StatusNeedsUpdate,
	StatusUpdated,
	StatusResolved,
	StatusClosed,
	StatusLeft,
}

// ParseStatus accepts a status name in any case.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllStatuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// IsQueued reports whether a request in this status holds a slot in the course Order.
func (s Status) IsQueued() bool {
	switch s {
	case StatusPending, StatusInReview, StatusNeedsUpdate, StatusUpdated:
		return true
	}
	return false
}

// IsClaimable reports whether claimNext may pick a request in this status.
func (s Status) IsClaimable() bool {
	return s == StatusPending || s == StatusUpdated
}

// LeavesOrder reports whether entering this status removes the request from Order.
func (s Status) LeavesOrder() bool {
	switch s {
	case StatusServing, StatusClosed, StatusLeft:
		return true
	}
	return false
}

// Stored is the value kept in the status map; CREATED and CLOSED are both represented by absence.
func (s Status) Stored() string {
	if s == StatusCreated || s == StatusClosed {
		return ""
	}
	return string(s)
}

// FromStored translates a status map value back, absence meaning CREATED.
func FromStored(v string) Status {
	if v == "" {
		return StatusCreated
	}
	return Status(v)
}

func (s Status) String() string {
	return string(s)
}
