package types

import "context"

// IdentityHeader carries the player identity authenticated by the gateway.
const IdentityHeader = "X-Player-Identity"

type ctxKey struct{}

func WithPlayer(ctx context.Context, p PlayerID) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PlayerFrom(ctx context.Context) (PlayerID, bool) {
	p, ok := ctx.Value(ctxKey{}).(PlayerID)
	return p, ok && p != ""
}
