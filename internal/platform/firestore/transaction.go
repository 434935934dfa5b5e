package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction. Reads go through tx directly; writes must be
// queued with QueueWrite so that every read of the attempt happens before any write.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

type txContextKey struct{}

type txState struct {
	tx     *firestore.Transaction
	writes []func(*firestore.Transaction) error
}

// TransactionFromContext returns the transaction bound to ctx by RunTransaction.
func TransactionFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	state, ok := stateFromContext(ctx)
	if !ok {
		return nil, false
	}
	return state.tx, true
}

func stateFromContext(ctx context.Context) (*txState, bool) {
	if ctx == nil {
		return nil, false
	}
	state, ok := ctx.Value(txContextKey{}).(*txState)
	return state, ok && state != nil && state.tx != nil
}

// QueueWrite defers a write until the transaction function returns. Outside a transaction it
// returns an error.
func QueueWrite(ctx context.Context, write func(tx *firestore.Transaction) error) error {
	state, ok := stateFromContext(ctx)
	if !ok {
		return errors.New("firestore: no active transaction")
	}
	state.writes = append(state.writes, write)
	return nil
}

// RunTransaction executes fn within a transaction on the provided client. Writes queued by fn are
// applied, in order, after fn returns successfully. If ctx already carries a transaction, fn joins
// it instead of starting a new one.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}
	if state, ok := stateFromContext(ctx); ok {
		return fn(ctx, state.tx)
	}
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	txnCtx := ctx
	if cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > cfg.timeout {
			var cancel context.CancelFunc
			txnCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
	}

	var fnErr error
	err := client.RunTransaction(txnCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		state := &txState{tx: tx}
		if fnErr = fn(context.WithValue(ctx, txContextKey{}, state), tx); fnErr != nil {
			return fnErr
		}
		for _, write := range state.writes {
			if err := write(tx); err != nil {
				return err
			}
		}
		return nil
	}, firestore.MaxAttempts(cfg.attempts))

	// Errors raised by fn carry their own classification.
	if err != nil && fnErr != nil && errors.Is(err, fnErr) {
		return err
	}
	return WrapError("transaction", err)
}
