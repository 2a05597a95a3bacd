package engine

import "context"

// InvitationInput is the document a policy sees when an invitation is created.
type InvitationInput struct {
	OrgID       string `json:"org_id"`
	InviterRole string `json:"inviter_role"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	EmailDomain string `json:"email_domain"`
}

// Decision is the outcome of a policy evaluation. Reasons holds every deny message.
type Decision struct {
	Allowed bool
	Reasons []string
}

// Evaluator evaluates invitation policies using OPA or other engines.
type Evaluator interface {
	EvaluateInvitation(ctx context.Context, in InvitationInput) (Decision, error)
}
