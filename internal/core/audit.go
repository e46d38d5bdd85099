package core

import "time"

// AuditEntry captures a single authorization decision.
type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "ticket.app", "rsvp.issue")
	Action string `json:"action"`

	// App is the application the decision concerns.
	App string `json:"app,omitempty"`

	// User is the subject the decision concerns, if any.
	User string `json:"user,omitempty"`

	// Grant is the grant id involved, if any.
	Grant string `json:"grant,omitempty"`

	// Scope records the effective scope of the decision.
	Scope []string `json:"scope,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Metadata contains extra details (ticket exp, rsvp ttl, ...)
	Metadata map[string]any `json:"metadata,omitempty"`
}
