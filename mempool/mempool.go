// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"sync"
	"time"

	"github.com/tenebrium/tenebriumd/blockchain"
	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// Config is a descriptor containing the memory pool configuration.
type Config struct {
	// UTXOSnapshot returns a consistent view of the chain's current utxo
	// set. The pool resolves candidate inputs against it.
	UTXOSnapshot func() *blockchain.FullUTXOSet

	// TxIDVersion selects the canonicalization under which the pool derives
	// transaction ids and outpoints.
	TxIDVersion wire.TxIDVersion
}

// TxDesc is a descriptor about a transaction in the transaction pool.
type TxDesc struct {
	Tx *wire.MsgTx

	// TxID is the transaction's id under the pool's txid version.
	TxID chainhash.Hash

	// Added is the time when the entry was added to the pool.
	Added time.Time

	// Fee is the total input value minus the total output value.
	Fee uint64
}

// TxPool is used as a source of transactions that need to be mined into
// blocks and relayed to other peers. It is safe for concurrent access.
type TxPool struct {
	cfg Config

	mtx       sync.RWMutex
	pool      map[chainhash.Hash]*TxDesc
	outpoints map[wire.Outpoint]*TxDesc
}

// New returns a new memory pool for validating and storing standalone
// transactions until they are mined into a block.
func New(cfg *Config) *TxPool {
	return &TxPool{
		cfg:       *cfg,
		pool:      make(map[chainhash.Hash]*TxDesc),
		outpoints: make(map[wire.Outpoint]*TxDesc),
	}
}

// Count returns the number of transactions in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	return len(mp.pool)
}

// HaveTransaction returns whether the passed transaction id is in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransaction(txID *chainhash.Hash) bool {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	_, ok := mp.pool[*txID]
	return ok
}

// TxDescs returns descriptors for all transactions in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxDescs() []*TxDesc {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	descs := make([]*TxDesc, 0, len(mp.pool))
	for _, desc := range mp.pool {
		descs = append(descs, desc)
	}
	return descs
}

// ProcessTransaction validates the passed transaction and, if it passes,
// inserts it into the pool. Inputs must resolve against the chain's utxo
// snapshot or against an output of a pooled transaction; anything else is an
// orphan and rejected. Spending an outpoint another pooled transaction
// already spends is rejected as a double spend.
//
// This function is safe for concurrent access.
func (mp *TxPool) ProcessTransaction(tx *wire.MsgTx) (*TxDesc, error) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	return mp.maybeAcceptTransaction(tx)
}

// maybeAcceptTransaction is the internal version of ProcessTransaction.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *TxPool) maybeAcceptTransaction(tx *wire.MsgTx) (*TxDesc, error) {
	if err := tx.CheckSanity(); err != nil {
		return nil, txRuleError(RejectMalformed, err.Error())
	}

	// A standalone coinbase is never valid outside a block.
	if tx.IsCoinBase() {
		return nil, txRuleError(RejectCoinbase, "transaction is an individual coinbase")
	}

	txID, err := tx.TxID(mp.cfg.TxIDVersion)
	if err != nil {
		return nil, txRuleError(RejectMalformed, err.Error())
	}
	if _, ok := mp.pool[txID]; ok {
		str := fmt.Sprintf("already have transaction %s", txID)
		return nil, txRuleError(RejectDuplicate, str)
	}

	// No input may be spent by another pooled transaction.
	for _, txIn := range tx.TxIn {
		if spender, ok := mp.outpoints[txIn.PreviousOutpoint]; ok {
			str := fmt.Sprintf("output %s already spent by transaction %s "+
				"in the memory pool", txIn.PreviousOutpoint, spender.TxID)
			return nil, txRuleError(RejectDoubleSpend, str)
		}
	}

	// Resolve every input against the chain's utxo snapshot, falling back
	// to outputs of pooled transactions to allow chained spends.
	utxoSet := mp.cfg.UTXOSnapshot()
	totalIn := uint64(0)
	for _, txIn := range tx.TxIn {
		entry, ok := utxoSet.Get(txIn.PreviousOutpoint)
		if !ok {
			entry, ok = mp.pooledOutput(txIn.PreviousOutpoint)
		}
		if !ok {
			str := fmt.Sprintf("orphan transaction %s references output %s "+
				"which is neither confirmed nor pooled", txID, txIn.PreviousOutpoint)
			return nil, txRuleError(RejectOrphan, str)
		}
		lastTotalIn := totalIn
		totalIn += entry.Amount
		if totalIn < lastTotalIn {
			str := fmt.Sprintf("total input value of transaction %s overflows", txID)
			return nil, txRuleError(RejectInvalid, str)
		}
	}
	totalOut := uint64(0)
	for _, txOut := range tx.TxOut {
		lastTotalOut := totalOut
		totalOut += txOut.Amount
		if totalOut < lastTotalOut {
			str := fmt.Sprintf("total output value of transaction %s overflows", txID)
			return nil, txRuleError(RejectInvalid, str)
		}
	}
	if totalOut > totalIn {
		str := fmt.Sprintf("transaction %s spends %d but only has %d available",
			txID, totalOut, totalIn)
		return nil, txRuleError(RejectInsufficient, str)
	}

	desc := &TxDesc{
		Tx:    tx,
		TxID:  txID,
		Added: time.Now(),
		Fee:   totalIn - totalOut,
	}
	mp.pool[txID] = desc
	for _, txIn := range tx.TxIn {
		mp.outpoints[txIn.PreviousOutpoint] = desc
	}
	log.Debugf("Accepted transaction %s (pool size %d)", txID, len(mp.pool))
	return desc, nil
}

// pooledOutput resolves an outpoint against the outputs of pooled
// transactions.
//
// This function MUST be called with the pool lock held (for reads).
func (mp *TxPool) pooledOutput(outpoint wire.Outpoint) (*blockchain.UTXOEntry, bool) {
	desc, ok := mp.pool[outpoint.TxID]
	if !ok || outpoint.Index >= uint32(len(desc.Tx.TxOut)) {
		return nil, false
	}
	txOut := desc.Tx.TxOut[outpoint.Index]
	return &blockchain.UTXOEntry{Amount: txOut.Amount, ScriptPubKey: txOut.ScriptPubKey}, true
}

// removeTransaction removes the given transaction and, recursively, every
// pooled transaction spending one of its outputs.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *TxPool) removeTransaction(txID chainhash.Hash) {
	desc, ok := mp.pool[txID]
	if !ok {
		return
	}
	for index := range desc.Tx.TxOut {
		outpoint := wire.Outpoint{TxID: txID, Index: uint32(index)}
		if spender, ok := mp.outpoints[outpoint]; ok {
			mp.removeTransaction(spender.TxID)
		}
	}
	for _, txIn := range desc.Tx.TxIn {
		delete(mp.outpoints, txIn.PreviousOutpoint)
	}
	delete(mp.pool, txID)
}

// HandleConnectedBlock updates the pool after a block was connected to the
// selected chain: its transactions leave the pool, as does any pooled
// transaction that double-spends an outpoint the block consumed.
//
// This function is safe for concurrent access.
func (mp *TxPool) HandleConnectedBlock(block *wire.MsgBlock) error {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	for _, tx := range block.Transactions {
		txID, err := tx.TxID(mp.cfg.TxIDVersion)
		if err != nil {
			return err
		}
		mp.removeTransaction(txID)
		for _, txIn := range tx.TxIn {
			if spender, ok := mp.outpoints[txIn.PreviousOutpoint]; ok {
				mp.removeTransaction(spender.TxID)
			}
		}
	}
	return nil
}

// HandleDisconnectedBlock re-injects the non-coinbase transactions of a block
// that was disconnected during a reorganization. Transactions that no longer
// resolve under the new chain are dropped silently.
//
// This function is safe for concurrent access.
func (mp *TxPool) HandleDisconnectedBlock(block *wire.MsgBlock) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	for _, tx := range block.Transactions {
		if tx.IsCoinBase() {
			continue
		}
		_, err := mp.maybeAcceptTransaction(tx)
		if err != nil {
			log.Debugf("Dropping disconnected transaction: %s", err)
		}
	}
}
