package domain

import "time"

// Target types recorded on audit events.
const (
	TargetMember       = "member"
	TargetInvitation   = "invitation"
	TargetTransfer     = "ownership_transfer"
	TargetOrganization = "organization"
	TargetBulk         = "bulk_operation"
)

// Outcomes recorded on audit events.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

// Event is one lifecycle state transition delivered to the audit/notification sink.
type Event struct {
	ID         string            `json:"id"`
	OrgID      string            `json:"orgId"`
	ActorID    string            `json:"actorId"`
	Action     string            `json:"action"`
	TargetType string            `json:"targetType"`
	TargetID   string            `json:"targetId"`
	Outcome    string            `json:"outcome"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IP         string            `json:"ip,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
