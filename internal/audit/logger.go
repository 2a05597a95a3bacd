package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"records-dashboard/backend/internal/audit/domain"
	auditrepo "records-dashboard/backend/internal/audit/repository"
)

// SentinelOrgID is the org_id recorded for audit events that carry no org.
const SentinelOrgID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Sink receives lifecycle events. Record is best-effort: failures are logged and do not affect the caller.
type Sink interface {
	Record(ctx context.Context, event domain.Event)
}

// Logger implements Sink using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
}

// NewLogger returns a Sink that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". log may be nil.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// Record writes one audit entry. Best-effort: errors are logged and not returned.
func (l *Logger) Record(ctx context.Context, event domain.Event) {
	if l.repo == nil {
		return
	}
	event = Normalize(event)
	if event.IP == "" {
		event.IP = "unknown"
		if l.ipExtractor != nil {
			event.IP = l.ipExtractor(ctx)
		}
	}
	if err := l.repo.Create(ctx, &event); err != nil {
		l.log.Warn("audit: failed to record event",
			zap.String("action", event.Action),
			zap.String("target_type", event.TargetType),
			zap.String("target_id", event.TargetID),
			zap.Error(err))
	}
}

// Normalize fills ID, timestamp, org and outcome defaults on event.
func Normalize(event domain.Event) domain.Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.OrgID == "" {
		event.OrgID = SentinelOrgID
	}
	if event.Outcome == "" {
		event.Outcome = domain.OutcomeSuccess
	}
	return event
}

// Multi fans one event out to every sink in order.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, event domain.Event) {
	event = Normalize(event)
	for _, s := range m {
		if s != nil {
			s.Record(ctx, event)
		}
	}
}

// Nop discards events.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, domain.Event) {}
