// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tenebrium/tenebriumd/dbaccess"
	"github.com/tenebrium/tenebriumd/logger"
	"github.com/tenebrium/tenebriumd/wire"
)

// maxPreverifyWorkers bounds the number of goroutines used for CPU-bound
// block pre-verification.
const maxPreverifyWorkers = 8

// ProcessBlock is the main workhorse for handling insertion of new blocks
// into the block chain. It includes functionality such as rejecting duplicate
// blocks, ensuring blocks follow all rules, and chain selection with
// reorganization.
//
// It returns whether or not the block ended up on the selected chain.
//
// This function is safe for concurrent access.
func (c *Chain) ProcessBlock(block *wire.MsgBlock, flags BehaviorFlags) (bool, error) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	defer logger.LogAndMeasureExecutionTime(log, "ProcessBlock")()

	blockHash := block.BlockHash()
	log.Tracef("Processing block %s", blockHash)

	// The block must not already exist in the index. Rejections are
	// permanent: a block that failed once fails forever with its original
	// violation.
	if node := c.index.LookupNode(&blockHash); node != nil {
		if node.status == statusRejected {
			return false, node.rejectionErr
		}
		str := fmt.Sprintf("already have block %s", blockHash)
		return false, ruleError(ErrDuplicateBlock, str)
	}

	// The parent must be known and must not have been rejected.
	parent := c.index.LookupNode(&block.Header.PrevBlock)
	if parent == nil {
		str := fmt.Sprintf("parent block %s is unknown", block.Header.PrevBlock)
		return false, ruleError(ErrParentBlockUnknown, str)
	}
	if parent.status == statusRejected {
		str := fmt.Sprintf("parent block %s is known to be invalid",
			block.Header.PrevBlock)
		return false, ruleError(ErrInvalidAncestorBlock, str)
	}

	node := newBlockNode(&block.Header, parent)

	err := c.checkBlockHeaderContext(&block.Header, parent, flags)
	if err != nil {
		c.rejectNode(node, err)
		return false, err
	}
	node.status = statusHeaderValid

	err = checkBlockSanity(block, c.txIDVersion)
	if err != nil {
		c.rejectNode(node, err)
		return false, err
	}
	node.status = statusBlockValid

	// Accepted blocks are persisted immediately, side chains included, so a
	// restarted node can rebuild the full index and later reorganize onto
	// branches it accepted before the restart.
	err = c.saveAcceptedBlock(node, block)
	if err != nil {
		return false, err
	}
	c.index.AddNode(node)
	c.blocks[node.hash] = block

	// Chain selection by cumulative work. Equal work keeps the current
	// tip: the first fully validated chain wins ties.
	if node.parent == c.tip {
		err := c.connectBlock(node, block)
		if err != nil {
			return false, err
		}
		log.Infof("Block %s connected at height %d", node.hash, node.height)
		return true, nil
	}

	if node.workSum.Cmp(c.tip.workSum) > 0 {
		err := c.reorganizeChain(node)
		if err != nil {
			return false, err
		}
		log.Infof("Chain reorganized to tip %s at height %d", node.hash, node.height)
		return true, nil
	}

	log.Debugf("Block %s extends a side chain at height %d (tip work not exceeded)",
		node.hash, node.height)
	return false, nil
}

// rejectNode marks a node permanently rejected with the rule violation that
// condemned it and records it in the index.
func (c *Chain) rejectNode(node *blockNode, err error) {
	node.status = statusRejected
	node.rejectionErr = err
	c.index.AddNode(node)
	log.Debugf("Rejected block %s: %s", node.hash, err)
}

// connectBlock applies a block that extends the current tip. The utxo set
// mutation and the database write both happen before the tip moves; a rule
// violation during apply leaves chain state untouched.
//
// This function MUST be called with the chain state lock held (for writes).
func (c *Chain) connectBlock(node *blockNode, block *wire.MsgBlock) error {
	subsidy := CalcBlockSubsidy(node.height, c.params)
	undo, err := c.utxoSet.ApplyBlock(block, node.height, c.txIDVersion, subsidy)
	if err != nil {
		c.rejectNode(node, err)
		delete(c.blocks, node.hash)
		return err
	}

	err = c.saveConnectedBlock(node, undo)
	if err != nil {
		// The database write failed; revert the in-memory mutation so
		// state and disk stay consistent.
		rollbackErr := c.utxoSet.RollbackBlock(undo)
		if rollbackErr != nil {
			panic(rollbackErr)
		}
		return err
	}

	c.undoData[node.hash] = undo
	node.status = statusConnected
	c.tip = node
	return nil
}

// reorganizeChain switches the selected chain to the one ending in newTip.
// The old branch is disconnected in reverse using stored undo data and the
// new branch connected in order, all staged against a clone of the utxo set.
// Chain state is published atomically only after every step succeeded; a
// failure mid-connect rejects the offending block and leaves the current
// chain untouched.
//
// This function MUST be called with the chain state lock held (for writes).
func (c *Chain) reorganizeChain(newTip *blockNode) error {
	forkPoint := c.findForkPoint(newTip)
	if forkPoint == nil {
		return AssertError(fmt.Sprintf("no fork point between tip %s and "+
			"candidate tip %s", c.tip.hash, newTip.hash))
	}

	// Collect the branch to disconnect, tip first, and the branch to
	// connect, fork point first.
	detachNodes := make([]*blockNode, 0)
	for node := c.tip; node != forkPoint; node = node.parent {
		detachNodes = append(detachNodes, node)
	}
	attachNodes := make([]*blockNode, 0)
	for node := newTip; node != forkPoint; node = node.parent {
		attachNodes = append(attachNodes, node)
	}
	for i, j := 0, len(attachNodes)-1; i < j; i, j = i+1, j-1 {
		attachNodes[i], attachNodes[j] = attachNodes[j], attachNodes[i]
	}

	log.Infof("Reorganizing: disconnecting %d blocks, connecting %d blocks "+
		"(fork point %s at height %d)", len(detachNodes), len(attachNodes),
		forkPoint.hash, forkPoint.height)

	// Stage everything against a clone. The live set is untouched until
	// the whole reorganization has validated.
	stagedSet := c.utxoSet.Clone()
	detachUndo := make([]*BlockUndoData, len(detachNodes))
	for i, node := range detachNodes {
		undo, err := c.blockUndoData(node)
		if err != nil {
			return err
		}
		detachUndo[i] = undo
		err = stagedSet.RollbackBlock(undo)
		if err != nil {
			return err
		}
	}

	attachUndo := make([]*BlockUndoData, len(attachNodes))
	for i, node := range attachNodes {
		block, err := c.blockBody(node)
		if err != nil {
			return err
		}
		subsidy := CalcBlockSubsidy(node.height, c.params)
		undo, err := stagedSet.ApplyBlock(block, node.height, c.txIDVersion, subsidy)
		if err != nil {
			// The candidate branch is invalid at this block. Reject
			// it and everything after it; the current chain stands.
			c.rejectNode(node, err)
			for _, descendant := range attachNodes[i+1:] {
				c.rejectNode(descendant, ruleError(ErrInvalidAncestorBlock,
					fmt.Sprintf("ancestor block %s is invalid", node.hash)))
			}
			return err
		}
		attachUndo[i] = undo
	}

	err := c.saveReorganization(newTip, detachNodes, detachUndo, attachNodes,
		attachUndo, stagedSet)
	if err != nil {
		return err
	}

	// Publish: swap in the staged set and move the statuses.
	c.utxoSet = stagedSet
	for _, node := range detachNodes {
		node.status = statusBlockValid
		delete(c.undoData, node.hash)
	}
	for i, node := range attachNodes {
		node.status = statusConnected
		c.undoData[node.hash] = attachUndo[i]
	}
	c.tip = newTip
	return nil
}

// findForkPoint returns the deepest common ancestor of the current tip and
// the given node.
func (c *Chain) findForkPoint(node *blockNode) *blockNode {
	tipAncestor := c.tip
	nodeAncestor := node
	for tipAncestor.height > nodeAncestor.height {
		tipAncestor = tipAncestor.parent
	}
	for nodeAncestor.height > tipAncestor.height {
		nodeAncestor = nodeAncestor.parent
	}
	for tipAncestor != nodeAncestor {
		if tipAncestor == nil || nodeAncestor == nil {
			return nil
		}
		tipAncestor = tipAncestor.parent
		nodeAncestor = nodeAncestor.parent
	}
	return tipAncestor
}

// saveReorganization persists a whole reorganization in one database
// transaction: the detached branch's utxo deltas are inverted and its undo
// data dropped, the attached branch's deltas and undo data written, and the
// tip moved. The attached blocks themselves were already stored at
// acceptance.
func (c *Chain) saveReorganization(newTip *blockNode, detachNodes []*blockNode,
	detachUndo []*BlockUndoData, attachNodes []*blockNode,
	attachUndo []*BlockUndoData, stagedSet *FullUTXOSet) error {

	if c.databaseContext == nil {
		return nil
	}

	dbTx, err := c.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	for i, node := range detachNodes {
		err := saveReorganizedUTXODelta(dbTx, detachUndo[i])
		if err != nil {
			return err
		}
		err = dbaccess.RemoveUndoData(dbTx, &node.hash)
		if err != nil {
			return err
		}
	}
	for i, node := range attachNodes {
		err = saveUTXODelta(dbTx, stagedSet, attachUndo[i])
		if err != nil {
			return err
		}
		err = dbaccess.StoreUndoData(dbTx, &node.hash, SerializeBlockUndoData(attachUndo[i]))
		if err != nil {
			return err
		}
	}
	err = dbaccess.StoreUTXOCount(dbTx, stagedSet.Count())
	if err != nil {
		return err
	}
	err = dbaccess.StoreTip(dbTx, &newTip.hash, newTip.height)
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

// PreverifyBlocks runs the CPU-bound standalone checks (proof of work and
// merkle commitment) of the given blocks concurrently, bounded by
// maxPreverifyWorkers. It is meant to front-run ProcessBlock for batches,
// e.g. during initial sync: the serialized connect step then repeats the
// cheap checks but skips nothing, so a passing pre-verification is purely an
// optimization and a failing one surfaces the first rule violation early.
func (c *Chain) PreverifyBlocks(ctx context.Context, blocks []*wire.MsgBlock) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(maxPreverifyWorkers)
	for _, block := range blocks {
		block := block
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := checkProofOfWork(&block.Header, c.params, BFNone)
			if err != nil {
				return err
			}
			return checkBlockSanity(block, c.txIDVersion)
		})
	}
	return group.Wait()
}

// ProcessBlocks pre-verifies the given blocks in parallel and then processes
// them in order. Processing stops at the first block that fails to process;
// blocks that merely land on side chains do not stop the batch.
func (c *Chain) ProcessBlocks(ctx context.Context, blocks []*wire.MsgBlock,
	flags BehaviorFlags) error {

	err := c.PreverifyBlocks(ctx, blocks)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		_, err := c.ProcessBlock(block, flags)
		if err != nil {
			return err
		}
	}
	return nil
}
