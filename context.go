package tokenAuth

import "context"

type ctxKey uint8

const (
	ctxKeyClientIP ctxKey = iota
	ctxKeyIdentity
)

// WithClientIP records the caller's address on ctx. Login throttling and
// audit events read it; an absent address disables the per-IP budget.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(ctxKeyClientIP).(string)
	return ip
}

// WithIdentity stores the identity that middleware.Guard authenticated.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the identity set by [WithIdentity], if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}
