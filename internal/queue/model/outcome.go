package model

// Outcome is what a lifecycle transition produced and what must be announced.
type Outcome struct {
	CourseID  string
	RequestID string
	CreatorID string
	ActorID   string
	ActorRole Role
	From      Status
	To        Status
	// Noop is set when the request was already in the target status.
	Noop     bool
	Statuses map[string]Status
	// Order is the Order after the mutation; nil when the transition does not touch Order.
	Order        []string
	OrderChanged bool
	// Active is non-nil when the creator's active request changes.
	Active *ActiveRequest
}

// Snapshot is the one-time state pushed to a newly authenticated realtime session.
type Snapshot struct {
	Order    OrderUpdate
	Statuses StatusUpdate
	Active   ActiveRequest
}
