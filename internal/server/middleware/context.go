package middleware

import (
	"context"

	membershipdomain "records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/security"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	clientIPKey = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id *security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (*security.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*security.Identity)
	return id, ok && id != nil
}

// ActorFrom returns the caller as the actor the services expect.
func ActorFrom(ctx context.Context) (membershipdomain.Actor, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return membershipdomain.Actor{}, false
	}
	return membershipdomain.Actor{UserID: id.UserID, DisplayName: id.DisplayName, Email: id.Email}, true
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFrom returns the client IP stored by RealClientIP, or "unknown". It satisfies audit.IPExtractor.
func ClientIPFrom(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}
