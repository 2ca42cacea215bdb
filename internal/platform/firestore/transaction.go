package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// Order writes contend on idempotency claims, so a handful of retries is enough before the
// caller sees a conflict.
const (
	orderTxMaxAttempts = 5
	orderTxBudget      = 15 * time.Second
)

// TxFunc is the body of a transaction. Firestore may run it again after contention, so it must
// not have side effects outside tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption adjusts a single RunTransaction call.
type TxOption func(*txSettings)

type txSettings struct {
	maxAttempts int
	budget      time.Duration
	readOnly    bool
}

func (s txSettings) firestoreOptions() []firestore.TransactionOption {
	opts := []firestore.TransactionOption{firestore.MaxAttempts(s.maxAttempts)}
	if s.readOnly {
		opts = append(opts, firestore.ReadOnly)
	}
	return opts
}

// WithTxAttempts caps how many times the body runs.
func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithTxTimeout bounds the whole transaction, retries included. A tighter caller deadline wins.
func WithTxTimeout(budget time.Duration) TxOption {
	return func(s *txSettings) {
		if budget > 0 {
			s.budget = budget
		}
	}
}

// ReadOnly runs the body against a consistent snapshot without taking write locks.
func ReadOnly() TxOption {
	return func(s *txSettings) { s.readOnly = true }
}

// RunTransaction executes fn on client and maps the outcome through WrapError.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	switch {
	case client == nil:
		return WrapError("transaction", errors.New("firestore: client is nil"))
	case fn == nil:
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	settings := txSettings{maxAttempts: orderTxMaxAttempts, budget: orderTxBudget}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	deadline := time.Now().Add(settings.budget)
	if current, ok := ctx.Deadline(); !ok || current.After(deadline) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	op := "transaction"
	if settings.readOnly {
		op = "transaction.readonly"
	}
	return WrapError(op, client.RunTransaction(ctx, fn, settings.firestoreOptions()...))
}
