package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Txn is one optimistic local mutation: apply a speculative entry tagged
// with a temporary id, then either commit it or roll back exactly that
// entry. Commit and Rollback are mutually exclusive and single-shot.
type Txn struct {
	id       string
	rollback func(tempID string)

	mu   sync.Mutex
	done bool
}

// BeginOptimistic applies the speculative mutation and returns the
// transaction handle. apply and rollback both receive the temporary id so
// the rollback can remove exactly the entry apply added.
func BeginOptimistic(apply, rollback func(tempID string)) *Txn {
	id := uuid.NewString()
	apply(id)
	return &Txn{id: id, rollback: rollback}
}

func (t *Txn) TempID() string { return t.id }

// Commit accepts the speculative entry as final.
func (t *Txn) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}

// Rollback removes the speculative entry. No-op after Commit or a prior
// Rollback.
func (t *Txn) Rollback() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.rollback(t.id)
}

// Optimistically runs the remote write bracketed by an optimistic local
// mutation: rolled back when write fails, committed when it succeeds.
func Optimistically(ctx context.Context, apply, rollback func(tempID string), write func(ctx context.Context) error) error {
	txn := BeginOptimistic(apply, rollback)
	if err := write(ctx); err != nil {
		txn.Rollback()
		return err
	}
	txn.Commit()
	return nil
}
