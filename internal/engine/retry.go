package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// opRunner applies the per-operation timeout and the retry-once policy to
// store calls.
type opRunner struct {
	timeout time.Duration
	logger  *zap.Logger
}

func (r opRunner) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx)
}

// do runs fn, retrying once on a transient failure. A failure that survives
// the retry is wrapped in *TransientStoreError.
func (r opRunner) do(ctx context.Context, op string, fn func(context.Context) error) error {
	err := r.call(ctx, fn)
	if !isTransient(ctx, err) {
		return err
	}
	r.logger.Debug("engine: retrying store operation", zap.String("op", op), zap.Error(err))
	if err = r.call(ctx, fn); err == nil {
		return nil
	}
	if isTransient(ctx, err) {
		return &TransientStoreError{Op: op, Err: err}
	}
	return err
}

// commit is do on a context that ignores the caller's cancellation, so a
// sequence of writes that has begun is carried to the end.
func (r opRunner) commit(ctx context.Context, op string, fn func(context.Context) error) error {
	return r.do(context.WithoutCancel(ctx), op, fn)
}
