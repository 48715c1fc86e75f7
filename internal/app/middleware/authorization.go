package middleware

import (
	"context"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/policies"
	"bookingengine/internal/app/queries"
	"bookingengine/internal/domain/shared/failure"
)

var ErrActorMismatch = failure.Forbidden("FORBIDDEN", "caller does not match the acting user")

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// ActorAuthorizer requires messages that name an actor to be sent by that
// actor. Admins may act for anyone; messages without an actor pass.
type ActorAuthorizer struct{}

func (ActorAuthorizer) Authorize(ctx context.Context, message any) error {
	acting, ok := message.(interface{ ActorID() string })
	if !ok {
		return nil
	}
	p, ok := policies.PrincipalFrom(ctx)
	if !ok {
		return ErrActorMismatch
	}
	if p.HasRole(policies.RoleAdmin) || p.UserID == acting.ActorID() {
		return nil
	}
	return ErrActorMismatch
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		a = ActorAuthorizer{}
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		a = ActorAuthorizer{}
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}
