package support

import (
	"context"

	"bookingengine/internal/app/uow"
)

// ReadOnly runs fn in the unit already in ctx or in a fresh read-only unit that is always rolled back.
func ReadOnly(ctx context.Context, factory uow.Factory, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	if unit, ok := uow.FromContext(ctx); ok {
		return fn(ctx, unit)
	}
	if factory == nil {
		return uow.ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	execCtx := uow.Inject(ctx, unit)
	defer func() {
		_ = unit.Rollback(context.WithoutCancel(execCtx))
	}()
	return fn(execCtx, unit)
}
