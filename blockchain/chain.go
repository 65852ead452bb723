// Copyright (c) 2013-2018 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tenebrium/tenebriumd/chaincfg"
	"github.com/tenebrium/tenebriumd/database"
	"github.com/tenebrium/tenebriumd/dbaccess"
	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// schemaVersion is the database schema version this code reads and writes.
// Version 1 keyed the utxo namespace by v1 txids; version 2 by v2 txids.
const schemaVersion = 2

// Config is a descriptor which specifies the blockchain instance
// configuration.
type Config struct {
	// DatabaseContext defines the database the chain persists through.
	// It may be nil, in which case the chain lives purely in memory.
	DatabaseContext *dbaccess.DatabaseContext

	// Params identifies the network the chain is associated with.
	//
	// This field is required.
	Params *chaincfg.Params

	// TxIDVersion selects the canonicalization under which transaction
	// ids, outpoints and merkle commitments are derived. Zero means
	// TxIDV2.
	TxIDVersion wire.TxIDVersion

	// TimeSource defines the clock used for timestamp validation. It may
	// be nil, in which case the wall clock is used.
	TimeSource func() time.Time
}

// Chain provides functions for working with the tenebrium block chain: the
// header index, the selected tip, the full utxo set, and rule validation of
// incoming blocks including reorganization.
type Chain struct {
	params          *chaincfg.Params
	databaseContext *dbaccess.DatabaseContext
	txIDVersion     wire.TxIDVersion
	timeSource      func() time.Time

	// stateLock protects everything below. There is a single writer:
	// ProcessBlock. Readers take snapshots under the read lock.
	stateLock sync.RWMutex
	index     *blockIndex
	tip       *blockNode
	utxoSet   *FullUTXOSet

	// undoData keeps per-block rollback data for connected blocks and
	// blocks holds the full block bodies, both keyed by block hash.
	undoData map[chainhash.Hash]*BlockUndoData
	blocks   map[chainhash.Hash]*wire.MsgBlock
}

// New constructs a chain from the given configuration. When a database
// context is supplied and holds existing chain state, the state is loaded and
// verified against the configured network; otherwise the genesis header is
// committed as the initial state.
func New(config *Config) (*Chain, error) {
	if config.Params == nil {
		return nil, AssertError("blockchain.New chain parameters are nil")
	}

	txIDVersion := config.TxIDVersion
	if txIDVersion == 0 {
		txIDVersion = wire.TxIDV2
	}
	timeSource := config.TimeSource
	if timeSource == nil {
		timeSource = defaultTimeSource
	}

	c := &Chain{
		params:          config.Params,
		databaseContext: config.DatabaseContext,
		txIDVersion:     txIDVersion,
		timeSource:      timeSource,
		index:           newBlockIndex(),
		utxoSet:         NewFullUTXOSet(),
		undoData:        make(map[chainhash.Hash]*BlockUndoData),
		blocks:          make(map[chainhash.Hash]*wire.MsgBlock),
	}

	genesisHeader := config.Params.GenesisHeader
	genesisNode := newBlockNode(&genesisHeader, nil)
	genesisNode.status = statusConnected
	c.index.AddNode(genesisNode)
	c.tip = genesisNode

	if c.databaseContext != nil {
		hasState, err := c.loadChainState()
		if err != nil {
			return nil, err
		}
		if !hasState {
			err := c.initChainState()
			if err != nil {
				return nil, err
			}
		}
	}

	log.Infof("Chain initialized on %s (tip %s, height %d, %d utxo entries)",
		c.params.Name, c.tip.hash, c.tip.height, c.utxoSet.Count())
	return c, nil
}

// Params returns the network parameters the chain was configured with.
func (c *Chain) Params() *chaincfg.Params {
	return c.params
}

// TxIDVersion returns the txid canonicalization version the chain derives
// outpoints and merkle commitments under.
func (c *Chain) TxIDVersion() wire.TxIDVersion {
	return c.txIDVersion
}

// TipHash returns the hash of the selected tip.
//
// This function is safe for concurrent access.
func (c *Chain) TipHash() chainhash.Hash {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.tip.hash
}

// TipHeight returns the height of the selected tip.
//
// This function is safe for concurrent access.
func (c *Chain) TipHeight() uint64 {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.tip.height
}

// HaveBlock returns whether the chain index has a block with the given hash,
// regardless of whether it is connected.
//
// This function is safe for concurrent access.
func (c *Chain) HaveBlock(hash *chainhash.Hash) bool {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.index.HaveBlock(hash)
}

// UTXOSnapshot returns a deep copy of the current utxo set.
//
// This function is safe for concurrent access.
func (c *Chain) UTXOSnapshot() *FullUTXOSet {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.utxoSet.Clone()
}

// UTXOCount returns the number of entries in the current utxo set.
//
// This function is safe for concurrent access.
func (c *Chain) UTXOCount() uint64 {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.utxoSet.Count()
}

// BlockByHash returns the full block with the given hash, consulting the
// database when the in-memory cache does not hold the body.
//
// This function is safe for concurrent access.
func (c *Chain) BlockByHash(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	if block, ok := c.blocks[*hash]; ok {
		return block, nil
	}
	if c.databaseContext == nil {
		return nil, errors.Wrapf(database.ErrNotFound, "block %s not found", hash)
	}
	serialized, err := dbaccess.FetchBlock(c.databaseContext, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "block %s not found", hash)
	}
	block := &wire.MsgBlock{}
	err = block.DeserializeV2(serialized)
	if err != nil {
		return nil, err
	}
	return block, nil
}

// blockBody returns the body of an accepted block, falling back to the
// database when the in-memory cache does not hold it, which happens for
// blocks accepted before a restart.
//
// This function MUST be called with the chain state lock held (for writes).
func (c *Chain) blockBody(node *blockNode) (*wire.MsgBlock, error) {
	if block, ok := c.blocks[node.hash]; ok {
		return block, nil
	}
	if c.databaseContext == nil {
		return nil, AssertError(fmt.Sprintf("no block body for side chain "+
			"block %s", node.hash))
	}
	serialized, err := dbaccess.FetchBlock(c.databaseContext, &node.hash)
	if err != nil {
		return nil, errors.Wrapf(err, "no block body for side chain block %s",
			node.hash)
	}
	block := &wire.MsgBlock{}
	err = block.DeserializeV2(serialized)
	if err != nil {
		return nil, err
	}
	c.blocks[node.hash] = block
	return block, nil
}

// blockUndoData returns the rollback data of a connected block, falling back
// to the database when the in-memory cache does not hold it.
//
// This function MUST be called with the chain state lock held (for writes).
func (c *Chain) blockUndoData(node *blockNode) (*BlockUndoData, error) {
	if undo, ok := c.undoData[node.hash]; ok {
		return undo, nil
	}
	if c.databaseContext == nil {
		return nil, AssertError(fmt.Sprintf("no undo data for connected "+
			"block %s", node.hash))
	}
	serialized, err := dbaccess.FetchUndoData(c.databaseContext, &node.hash)
	if err != nil {
		return nil, errors.Wrapf(err, "no undo data for connected block %s",
			node.hash)
	}
	undo, err := DeserializeBlockUndoData(serialized)
	if err != nil {
		return nil, err
	}
	c.undoData[node.hash] = undo
	return undo, nil
}

// initChainState commits the genesis state of a fresh database: schema
// version, network id and the genesis header as tip.
func (c *Chain) initChainState() error {
	dbTx, err := c.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = dbaccess.StoreSchemaVersion(dbTx, schemaVersion)
	if err != nil {
		return err
	}
	err = dbaccess.StoreNetworkID(dbTx, uint32(c.params.Net))
	if err != nil {
		return err
	}
	genesis := c.tip
	err = dbaccess.StoreHeader(dbTx, &genesis.hash, genesis.header.Serialize())
	if err != nil {
		return err
	}
	err = dbaccess.StoreHeight(dbTx, &genesis.hash, genesis.height)
	if err != nil {
		return err
	}
	err = dbaccess.StoreWork(dbTx, &genesis.hash, genesis.workSum)
	if err != nil {
		return err
	}
	err = dbaccess.StoreTip(dbTx, &genesis.hash, genesis.height)
	if err != nil {
		return err
	}
	err = dbaccess.StoreUTXOCount(dbTx, 0)
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

// loadChainState restores the header index, tip and utxo set from the
// database. Returns false when the database carries no chain state yet.
func (c *Chain) loadChainState() (bool, error) {
	storedSchemaVersion, err := dbaccess.FetchSchemaVersion(c.databaseContext)
	if database.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if storedSchemaVersion != schemaVersion {
		str := fmt.Sprintf("database schema version %d is not the supported "+
			"version %d; reindex the data directory", storedSchemaVersion, schemaVersion)
		return false, ruleError(ErrUnsupportedSchema, str)
	}

	networkID, err := dbaccess.FetchNetworkID(c.databaseContext)
	if err != nil {
		return false, err
	}
	if networkID != uint32(c.params.Net) {
		str := fmt.Sprintf("database belongs to network %s but the chain is "+
			"configured for %s", chaincfg.Network(networkID), c.params.Net)
		return false, ruleError(ErrWrongNetwork, str)
	}

	err = c.loadHeaders()
	if err != nil {
		return false, err
	}
	err = c.loadUTXOSet()
	if err != nil {
		return false, err
	}

	tipHash, err := dbaccess.FetchTipHash(c.databaseContext)
	if err != nil {
		return false, err
	}
	tipNode := c.index.LookupNode(tipHash)
	if tipNode == nil {
		return false, AssertError(fmt.Sprintf("stored tip %s is not part of "+
			"the stored header index", tipHash))
	}
	c.tip = tipNode
	for node := tipNode; node != nil; node = node.parent {
		node.status = statusConnected
	}
	return true, nil
}

// loadHeaders reads every stored header, orders them by stored height and
// links them into the in-memory index.
func (c *Chain) loadHeaders() error {
	cursor, err := dbaccess.HeadersCursor(c.databaseContext)
	if err != nil {
		return err
	}
	defer cursor.Close()

	type storedHeader struct {
		header wire.BlockHeader
		height uint64
	}
	stored := make([]storedHeader, 0)

	for ok := cursor.First(); ok; ok = cursor.Next() {
		value, err := cursor.Value()
		if err != nil {
			return err
		}
		var header wire.BlockHeader
		err = header.Deserialize(value)
		if err != nil {
			return err
		}
		hash := header.BlockHash()
		height, err := dbaccess.FetchHeight(c.databaseContext, &hash)
		if err != nil {
			return err
		}
		stored = append(stored, storedHeader{header: header, height: height})
	}

	// Parents always have a smaller height, so sorting by height
	// guarantees every parent is linked before its children.
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].height < stored[j].height
	})

	for _, sh := range stored {
		hash := sh.header.BlockHash()
		if c.index.HaveBlock(&hash) {
			// The genesis node is created before loading.
			continue
		}
		parent := c.index.LookupNode(&sh.header.PrevBlock)
		if parent == nil {
			return AssertError(fmt.Sprintf("stored header %s has unknown "+
				"parent %s", hash, sh.header.PrevBlock))
		}
		node := newBlockNode(&sh.header, parent)
		node.status = statusBlockValid
		c.index.AddNode(node)
	}
	return nil
}

// loadUTXOSet reads every stored utxo entry into the in-memory set and
// verifies the stored count.
func (c *Chain) loadUTXOSet() error {
	cursor, err := dbaccess.UTXOSetCursor(c.databaseContext)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return err
		}
		value, err := cursor.Value()
		if err != nil {
			return err
		}
		outpoint, err := DeserializeOutpointKey(key.Suffix())
		if err != nil {
			return err
		}
		entry, err := DeserializeUTXOEntry(value)
		if err != nil {
			return err
		}
		c.utxoSet.restoreEntry(outpoint, entry)
	}

	storedCount, err := dbaccess.FetchUTXOCount(c.databaseContext)
	if err != nil {
		return err
	}
	if storedCount != c.utxoSet.Count() {
		return AssertError(fmt.Sprintf("stored utxo count %d does not match "+
			"the %d loaded entries", storedCount, c.utxoSet.Count()))
	}
	return nil
}

// saveAcceptedBlock persists a block the moment it enters the index: header,
// height, work and body, whether or not it ends up on the selected chain. A
// restarted node rebuilds its whole index, side chains included, from these
// records.
func (c *Chain) saveAcceptedBlock(node *blockNode, block *wire.MsgBlock) error {
	if c.databaseContext == nil {
		return nil
	}

	dbTx, err := c.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = dbaccess.StoreHeader(dbTx, &node.hash, node.header.Serialize())
	if err != nil {
		return err
	}
	err = dbaccess.StoreHeight(dbTx, &node.hash, node.height)
	if err != nil {
		return err
	}
	err = dbaccess.StoreWork(dbTx, &node.hash, node.workSum)
	if err != nil {
		return err
	}
	serializedBlock, err := block.SerializeV2()
	if err != nil {
		return err
	}
	err = dbaccess.StoreBlock(dbTx, &node.hash, serializedBlock)
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

// saveConnectedBlock persists the chain state changes of a block connecting
// to the tip atomically: utxo delta, undo data, count and tip. The block
// itself was already stored at acceptance.
func (c *Chain) saveConnectedBlock(node *blockNode, undo *BlockUndoData) error {
	if c.databaseContext == nil {
		return nil
	}

	dbTx, err := c.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = saveUTXODelta(dbTx, c.utxoSet, undo)
	if err != nil {
		return err
	}
	err = dbaccess.StoreUndoData(dbTx, &node.hash, SerializeBlockUndoData(undo))
	if err != nil {
		return err
	}
	err = dbaccess.StoreUTXOCount(dbTx, c.utxoSet.Count())
	if err != nil {
		return err
	}
	err = dbaccess.StoreTip(dbTx, &node.hash, node.height)
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

// saveUTXODelta writes the utxo namespace changes a block's undo data
// describes: its spent entries are deleted and its created outpoints written.
// The entries of created outpoints are read from utxoSet, which must already
// have the block applied.
func saveUTXODelta(dbTx *dbaccess.TxContext, utxoSet *FullUTXOSet, undo *BlockUndoData) error {
	for outpoint := range undo.SpentEntries {
		err := dbaccess.RemoveFromUTXOSet(dbTx, SerializeOutpointKey(outpoint))
		if err != nil {
			return err
		}
	}
	for _, outpoint := range undo.CreatedOutpoints {
		entry, ok := utxoSet.Get(outpoint)
		if !ok {
			return AssertError(fmt.Sprintf("created outpoint %s missing from "+
				"the utxo set while persisting", outpoint))
		}
		err := dbaccess.AddToUTXOSet(dbTx, SerializeOutpointKey(outpoint),
			SerializeUTXOEntry(entry))
		if err != nil {
			return err
		}
	}
	return nil
}

// saveReorganizedUTXODelta writes the inverse of a disconnected block's undo
// data: its created outpoints are deleted and its spent entries restored.
func saveReorganizedUTXODelta(dbTx *dbaccess.TxContext, undo *BlockUndoData) error {
	for _, outpoint := range undo.CreatedOutpoints {
		err := dbaccess.RemoveFromUTXOSet(dbTx, SerializeOutpointKey(outpoint))
		if err != nil {
			return err
		}
	}
	for outpoint, entry := range undo.SpentEntries {
		err := dbaccess.AddToUTXOSet(dbTx, SerializeOutpointKey(outpoint),
			SerializeUTXOEntry(entry))
		if err != nil {
			return err
		}
	}
	return nil
}
