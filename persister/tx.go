package persister

import (
	"context"

	"github.com/uptrace/bun"
)

type txContextKey struct{}

// WithTx attaches the storage transaction opened by the caller. Persisters
// resolved by a Dispatcher run their statements on it instead of on the
// dispatcher's database handle.
func WithTx(ctx context.Context, tx bun.IDB) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFrom returns the transaction attached with WithTx.
func TxFrom(ctx context.Context) (bun.IDB, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(bun.IDB)
	return tx, ok && tx != nil
}
