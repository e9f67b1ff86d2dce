package store

import (
	"context"
	"testing"
)

type ctxMarker struct{}

func TestDetachDropsTxAndCancellation(t *testing.T) {
	base := context.WithValue(context.Background(), ctxMarker{}, "req-1")
	ctx, cancel := context.WithCancel(WithTx(base, "tx"))
	cancel()

	d := Detach(ctx)
	if TxFrom(d) != nil {
		t.Fatal("detached context must not carry the transaction")
	}
	if d.Err() != nil {
		t.Fatalf("detached context must not be cancelled, got %v", d.Err())
	}
	if d.Value(ctxMarker{}) != "req-1" {
		t.Fatal("detached context must keep request values")
	}
	if TxFrom(ctx) != "tx" {
		t.Fatal("original context must keep its transaction")
	}
}
