package app

import (
	"context"
	"errors"
	"testing"
)

func TestOptimisticallyCommitsOnSuccess(t *testing.T) {
	var applied, rolledBack bool
	err := Optimistically(context.Background(),
		func(string) { applied = true },
		func(string) { rolledBack = true },
		func(context.Context) error { return nil },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Error("apply not called")
	}
	if rolledBack {
		t.Error("rollback called on success")
	}
}

func TestOptimisticallyRollsBackOnFailure(t *testing.T) {
	boom := errors.New("backend down")
	var appliedID, rolledBackID string
	err := Optimistically(context.Background(),
		func(id string) { appliedID = id },
		func(id string) { rolledBackID = id },
		func(context.Context) error { return boom },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if appliedID == "" {
		t.Fatal("apply not called")
	}
	if rolledBackID != appliedID {
		t.Fatalf("rollback id %q does not match apply id %q", rolledBackID, appliedID)
	}
}

func TestTxnRollbackAfterCommitIsNoop(t *testing.T) {
	var rollbacks int
	txn := BeginOptimistic(func(string) {}, func(string) { rollbacks++ })
	txn.Commit()
	txn.Rollback()
	if rollbacks != 0 {
		t.Fatalf("rollback ran %d times after commit", rollbacks)
	}
}

func TestTxnRollbackIsSingleShot(t *testing.T) {
	var rollbacks int
	txn := BeginOptimistic(func(string) {}, func(string) { rollbacks++ })
	txn.Rollback()
	txn.Rollback()
	if rollbacks != 1 {
		t.Fatalf("rollback ran %d times, want 1", rollbacks)
	}
}
