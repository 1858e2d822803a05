package rdfstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Transaction wraps one pooled connection end-to-end: it is created by
// StartTransaction, used by zero or more Add/Remove/AddBatch/RemoveBatch
// calls, and must be ended exactly once by Commit or Rollback, which
// returns the connection to its pool.
//
// A Transaction is not safe for concurrent use from multiple goroutines;
// the core does not serialize operations on one Transaction, the owning
// caller must.
type Transaction struct {
	id       uuid.UUID
	tx       pgx.Tx
	release  func()
	registry *transactionRegistry
	done     bool

	QuadsAdded   int64
	QuadsRemoved int64
	TermsAdded   int64
}

// transactionRegistry tracks active transactions so a process-wide
// shutdown can roll all of them back rather than leaking connections.
type transactionRegistry struct {
	mu    sync.Mutex
	txns  map[uuid.UUID]*Transaction
}

func newTransactionRegistry() *transactionRegistry {
	return &transactionRegistry{txns: make(map[uuid.UUID]*Transaction)}
}

func (r *transactionRegistry) add(t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns[t.id] = t
}

func (r *transactionRegistry) remove(t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.txns, t.id)
}

// RollbackAll rolls back every still-active transaction. Intended for
// process shutdown.
func (r *transactionRegistry) RollbackAll(ctx context.Context) {
	r.mu.Lock()
	txns := make([]*Transaction, 0, len(r.txns))
	for _, t := range r.txns {
		txns = append(txns, t)
	}
	r.mu.Unlock()
	for _, t := range txns {
		_ = t.Rollback(ctx)
	}
}

// StartTransaction acquires a connection from the tuple pool and begins a
// transaction on it.
func (e *Engine) StartTransaction(ctx context.Context) (*Transaction, error) {
	conn, release, err := e.AcquireTuple(ctx)
	if err != nil {
		return nil, err
	}
	pgxTx, err := conn.Begin(ctx)
	if err != nil {
		release()
		return nil, wrapBackend("begin_transaction", "", err)
	}
	t := &Transaction{id: uuid.New(), tx: pgxTx, release: release, registry: e.txRegistry}
	e.txRegistry.add(t)
	return t, nil
}

// ID returns the transaction's identity, used for logging and the active
// registry.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Conn exposes the underlying pgx.Tx so batch writers (quad.go) can issue
// statements on exactly this transaction's connection.
func (t *Transaction) Conn() pgx.Tx { return t.tx }

// Commit commits the wrapped transaction and releases its connection.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return &TransactionError{Reason: "commit called on an already-finished transaction"}
	}
	err := t.tx.Commit(ctx)
	t.finish()
	if err != nil {
		return wrapBackend("commit_transaction", "", err)
	}
	return nil
}

// Rollback rolls back the wrapped transaction and releases its connection.
// Calling Rollback on an already-finished transaction is a no-op, so
// deferred cleanup after a successful Commit is always safe.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	err := t.tx.Rollback(ctx)
	t.finish()
	if err != nil {
		return wrapBackend("rollback_transaction", "", err)
	}
	return nil
}

func (t *Transaction) finish() {
	t.done = true
	if t.registry != nil {
		t.registry.remove(t)
	}
	if t.release != nil {
		t.release()
	}
}
