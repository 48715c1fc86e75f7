package middleware

import (
	"context"
	"errors"
	"time"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/shared/failure"
)

var ErrTimeout = failure.Unavailable("TIMEOUT", "operation timed out, retry")

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// Transaction runs every command in its own unit of work: commit on success, rollback on any error.
func Transaction(factory uow.Factory, optsProvider TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			opts := uow.TxOptions{}
			if optsProvider != nil {
				opts = optsProvider(cmd)
			}
			var res any
			err := uow.Run(ctx, factory, opts, func(txCtx context.Context, _ uow.UnitOfWork) error {
				var err error
				res, err = next.Dispatch(txCtx, cmd)
				return err
			})
			if err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}

// Timeout bounds a command; a deadline hit surfaces as a retryable TIMEOUT.
func Timeout(d time.Duration) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		if d <= 0 {
			return next
		}
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			res, err := next.Dispatch(ctx, cmd)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout.Wrap(err)
			}
			return res, err
		})
	}
}
