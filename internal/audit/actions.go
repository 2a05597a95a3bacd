package audit

// Actions recorded by the access-lifecycle services.
const (
	ActionOrgCreated = "organization.created"
	ActionOrgDeleted = "organization.deleted"

	ActionMemberRoleChanged = "member.role_changed"
	ActionMemberRemoved     = "member.removed"
	ActionMemberJoined      = "member.joined"

	ActionInvitationCreated   = "invitation.created"
	ActionInvitationResent    = "invitation.resent"
	ActionInvitationCancelled = "invitation.cancelled"
	ActionInvitationAccepted  = "invitation.accepted"

	ActionTransferInitiated = "ownership_transfer.initiated"
	ActionTransferAccepted  = "ownership_transfer.accepted"
	ActionTransferCancelled = "ownership_transfer.cancelled"

	ActionBulkMembersRemoved       = "bulk.members_removed"
	ActionBulkInvitationsCancelled = "bulk.invitations_cancelled"
)
