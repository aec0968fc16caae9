package db

import (
	"context"
	"errors"
	"testing"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected no transaction, got %v", tx)
	}
}

func TestSequentialTransactor(t *testing.T) {
	var tr Transactor = SequentialTransactor{}

	calls := 0
	err := tr.RunInTx(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected one successful call, got calls=%d err=%v", calls, err)
	}

	boom := errors.New("boom")
	err = tr.RunInTx(context.Background(), func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected error to propagate, got %v", err)
	}
}
