package csrf

import "context"

type ctxKey string

const guardKey ctxKey = "csrf_guard_ctx"

// contextWithGuard returns a derived context that stores the request's Guard.
func contextWithGuard(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, guardKey, g)
}

// FromContext returns the Guard that Protect bound to the request, if any.
//
// Params:
// - ctx: context of a request that went through Protect.
//
// Returns:
// - the Guard and a boolean indicating presence.
func FromContext(ctx context.Context) (*Guard, bool) {
	g, ok := ctx.Value(guardKey).(*Guard)
	return g, ok && g != nil
}
