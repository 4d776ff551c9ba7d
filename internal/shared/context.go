package shared

import "context"

// Actor identifies the authenticated merchant staff member behind a request.
// Authentication itself happens upstream; the gateway forwards the resolved
// identity in headers and the middleware stores it here.
type Actor struct {
	UserID    int64
	CompanyID int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor means the
// request is unauthenticated (public payment pages).
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
