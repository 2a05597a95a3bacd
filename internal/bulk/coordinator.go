// Package bulk runs multi-target member removals and invitation cancellations.
// Each target goes through the single-target service independently, so one failure never blocks the rest
// and the batch reports partial success instead of failing as a whole.
package bulk

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"records-dashboard/backend/internal/audit"
	auditdomain "records-dashboard/backend/internal/audit/domain"
	invitationservice "records-dashboard/backend/internal/invitation/service"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	membershipservice "records-dashboard/backend/internal/membership/service"
	"records-dashboard/backend/internal/platform/apperr"
	apptrace "records-dashboard/backend/internal/telemetry/otel"
)

// DefaultMaxTargets bounds a single batch when no limit is configured.
const DefaultMaxTargets = 100

// Kind names the target type of a batch.
type Kind string

const (
	KindMemberRemoval          Kind = "member_removal"
	KindInvitationCancellation Kind = "invitation_cancellation"
)

// Failure is one target that did not succeed. Reason is the error kind, Message the human-readable reason.
type Failure struct {
	ID      string      `json:"id"`
	Reason  apperr.Kind `json:"reason"`
	Message string      `json:"message"`
}

// Result aggregates a batch. Success is true only when every requested target succeeded.
type Result struct {
	OperationID string    `json:"operationId"`
	Kind        Kind      `json:"kind"`
	Requested   []string  `json:"requested"`
	Succeeded   []string  `json:"succeeded"`
	Failed      []Failure `json:"failed"`
	Success     bool      `json:"success"`
}

// Request is a combined action. Either list may be empty, but not both.
type Request struct {
	MemberIDs     []string
	InvitationIDs []string
}

// Combined holds the two independent batches of a combined action; a nil field was not requested.
type Combined struct {
	Members     *Result `json:"members,omitempty"`
	Invitations *Result `json:"invitations,omitempty"`
}

// Success reports whether every batch that ran fully succeeded.
func (c *Combined) Success() bool {
	return (c.Members == nil || c.Members.Success) && (c.Invitations == nil || c.Invitations.Success)
}

type operationIDKey struct{}

// WithOperationID makes batches started with ctx report under id instead of a generated one, so a
// client can subscribe to ProgressChannel(id) before the batch begins. Both halves of a combined
// action share the id; Progress.Kind tells them apart.
func WithOperationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, operationIDKey{}, id)
}

func (c *Coordinator) operationID(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey{}).(string); ok {
		return id
	}
	return c.newID()
}

// MemberRemover is the single-target removal the coordinator applies per id.
type MemberRemover interface {
	RemoveMember(ctx context.Context, orgID, memberID string, actor membershipdomain.Actor) (*membershipservice.Removal, error)
}

// InvitationCanceller is the single-target cancellation the coordinator applies per id.
type InvitationCanceller interface {
	Cancel(ctx context.Context, orgID, id string, actor membershipdomain.Actor) (*invitationservice.View, error)
}

// Coordinator runs batches against the membership and invitation services.
type Coordinator struct {
	members     MemberRemover
	invitations InvitationCanceller
	audit       audit.Sink
	publisher   ProgressObserver
	maxTargets  int
	targets     metric.Int64Counter
	now         func() time.Time
	newID       func() string
}

// New returns a Coordinator. sink and publisher may be nil; maxTargets <= 0 selects DefaultMaxTargets.
// publisher receives progress for every batch in addition to any per-call observer.
func New(members MemberRemover, invitations InvitationCanceller, sink audit.Sink, publisher ProgressObserver, maxTargets int) *Coordinator {
	if sink == nil {
		sink = audit.Nop{}
	}
	if publisher == nil {
		publisher = NopObserver{}
	}
	if maxTargets <= 0 {
		maxTargets = DefaultMaxTargets
	}
	counter, err := otel.Meter("records-dashboard/backend/bulk").Int64Counter("bulk.targets",
		metric.WithDescription("Targets processed by bulk operations, by kind and outcome."))
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter("").Int64Counter("bulk.targets")
	}
	return &Coordinator{
		members:     members,
		invitations: invitations,
		audit:       sink,
		publisher:   publisher,
		maxTargets:  maxTargets,
		targets:     counter,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
}

// RemoveMembers removes each member independently and reports per-id outcomes.
func (c *Coordinator) RemoveMembers(ctx context.Context, orgID string, memberIDs []string, actor membershipdomain.Actor, observer ProgressObserver) (*Result, error) {
	ids, err := c.normalize(memberIDs)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, orgID, KindMemberRemoval, ids, actor, observer, func(ctx context.Context, id string) error {
		_, err := c.members.RemoveMember(ctx, orgID, id, actor)
		return err
	}), nil
}

// CancelInvitations cancels each invitation independently and reports per-id outcomes.
func (c *Coordinator) CancelInvitations(ctx context.Context, orgID string, invitationIDs []string, actor membershipdomain.Actor, observer ProgressObserver) (*Result, error) {
	ids, err := c.normalize(invitationIDs)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, orgID, KindInvitationCancellation, ids, actor, observer, func(ctx context.Context, id string) error {
		_, err := c.invitations.Cancel(ctx, orgID, id, actor)
		return err
	}), nil
}

// Run processes a combined action as two independent batches: member removals, then invitation cancellations.
// Both lists are validated before either batch starts.
func (c *Coordinator) Run(ctx context.Context, orgID string, actor membershipdomain.Actor, req Request, observer ProgressObserver) (*Combined, error) {
	if len(req.MemberIDs) == 0 && len(req.InvitationIDs) == 0 {
		return nil, apperr.InvalidArgument("at least one member or invitation id is required")
	}
	var memberIDs, invitationIDs []string
	var err error
	if len(req.MemberIDs) > 0 {
		if memberIDs, err = c.normalize(req.MemberIDs); err != nil {
			return nil, err
		}
	}
	if len(req.InvitationIDs) > 0 {
		if invitationIDs, err = c.normalize(req.InvitationIDs); err != nil {
			return nil, err
		}
	}
	out := &Combined{}
	if memberIDs != nil {
		out.Members, _ = c.RemoveMembers(ctx, orgID, memberIDs, actor, observer)
	}
	if invitationIDs != nil {
		out.Invitations, _ = c.CancelInvitations(ctx, orgID, invitationIDs, actor, observer)
	}
	return out, nil
}

// normalize trims ids, drops blanks, and collapses duplicates keeping first occurrence order.
func (c *Coordinator) normalize(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, apperr.InvalidArgument("at least one id is required")
	}
	if len(out) > c.maxTargets {
		return nil, apperr.InvalidArgument("a batch may contain at most %d ids, got %d", c.maxTargets, len(out))
	}
	return out, nil
}

func (c *Coordinator) run(ctx context.Context, orgID string, kind Kind, ids []string, actor membershipdomain.Actor,
	observer ProgressObserver, apply func(context.Context, string) error) *Result {
	// The batch runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, end := apptrace.StartSpan(ctx, "bulk."+string(kind),
		attribute.String("org_id", orgID), attribute.Int("targets", len(ids)))
	defer end(nil)

	res := &Result{
		OperationID: c.operationID(ctx),
		Kind:        kind,
		Requested:   ids,
		Succeeded:   []string{},
		Failed:      []Failure{},
	}
	observers := fanout{c.publisher, observer}
	for i, id := range ids {
		outcome := "success"
		if err := apply(ctx, id); err != nil {
			outcome = "failure"
			res.Failed = append(res.Failed, Failure{ID: id, Reason: apperr.KindOf(err), Message: apperr.ReasonOf(err)})
		} else {
			res.Succeeded = append(res.Succeeded, id)
		}
		c.targets.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind)), attribute.String("outcome", outcome)))
		_ = observers.Observe(ctx, Progress{
			OperationID: res.OperationID,
			Kind:        kind,
			Processed:   i + 1,
			Total:       len(ids),
			Percent:     (i + 1) * 100 / len(ids),
		})
	}
	res.Success = len(res.Failed) == 0

	action := audit.ActionBulkMembersRemoved
	if kind == KindInvitationCancellation {
		action = audit.ActionBulkInvitationsCancelled
	}
	outcome := auditdomain.OutcomeSuccess
	switch {
	case len(res.Succeeded) == 0:
		outcome = auditdomain.OutcomeFailure
	case !res.Success:
		outcome = auditdomain.OutcomePartial
	}
	c.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: actor.UserID, Action: action,
		TargetType: auditdomain.TargetBulk, TargetID: res.OperationID, Outcome: outcome, Timestamp: c.now(),
		Metadata: map[string]string{
			"requested": strconv.Itoa(len(res.Requested)),
			"succeeded": strconv.Itoa(len(res.Succeeded)),
			"failed":    strconv.Itoa(len(res.Failed)),
		},
	})
	return res
}
