package grovedb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dashpay/grovedb-sub006/storage"
)

// TxRef is a handle to one open transaction (spec.md 4.6 "start_transaction
// /commit_transaction/rollback_transaction"): it wraps a storage.RawTx so
// every Get/Insert/Delete call on a GroveDb can transparently route through
// either the transactional or the immediate storage context by passing this
// handle's RawTx (or nil) through.
type TxRef struct {
	id uuid.UUID
	tx storage.RawTx
}

// ID identifies this transaction, useful for logging/diagnostics.
func (t *TxRef) ID() uuid.UUID { return t.id }

// RawTx exposes the underlying storage.RawTx, the value every GroveDb
// operation expects as its tx argument.
func (t *TxRef) RawTx() storage.RawTx { return t.tx }

// txRegistry tracks the single active transaction per GroveDb handle
// (spec.md 4.6 "at most one open transaction per handle").
type txRegistry struct {
	mu     sync.Mutex
	active *TxRef
}

// StartTransaction opens a new transaction against the backing store. Only
// one transaction may be active on a GroveDb at a time.
func (g *GroveDb) StartTransaction() (*TxRef, error) {
	g.txMu().mu.Lock()
	defer g.txMu().mu.Unlock()
	if g.txMu().active != nil {
		return nil, ErrAlreadyInTransaction
	}
	rawTx, err := g.store.BeginTx()
	if err != nil {
		return nil, err
	}
	ref := &TxRef{id: uuid.New(), tx: rawTx}
	g.txMu().active = ref
	return ref, nil
}

// CommitTransaction commits ref and clears it from the active slot.
func (g *GroveDb) CommitTransaction(ref *TxRef) error {
	g.txMu().mu.Lock()
	defer g.txMu().mu.Unlock()
	if g.txMu().active == nil || g.txMu().active.id != ref.id {
		return ErrTransactionNotFound
	}
	err := ref.tx.Commit()
	g.txMu().active = nil
	return err
}

// RollbackTransaction discards ref's writes and clears it from the active
// slot.
func (g *GroveDb) RollbackTransaction(ref *TxRef) error {
	g.txMu().mu.Lock()
	defer g.txMu().mu.Unlock()
	if g.txMu().active == nil || g.txMu().active.id != ref.id {
		return ErrTransactionNotFound
	}
	err := ref.tx.Rollback()
	g.txMu().active = nil
	return err
}

// txMu lazily initializes the registry; GroveDb is constructed via Open, so
// this only guards against a zero-value GroveDb slipping through.
func (g *GroveDb) txMu() *txRegistry {
	if g.txReg == nil {
		g.txReg = &txRegistry{}
	}
	return g.txReg
}
