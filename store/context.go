package store

import "context"

type txKey struct{}

// WithTx attaches a backend transaction handle to ctx. Backends call this
// from Begin.
func WithTx(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the backend transaction handle carried by ctx, if any.
func TxFrom(ctx context.Context) any {
	return ctx.Value(txKey{})
}

// Detach returns a context that keeps ctx's values (logger, request id) but
// neither its cancellation nor its transaction.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), txKey{}, nil)
}
