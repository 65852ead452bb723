package blockchain

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/tenebrium/tenebriumd/chaincfg"
	"github.com/tenebrium/tenebriumd/dbaccess"
	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// testNowOffset positions the injected clock comfortably after the genesis
// timestamp so test block timestamps never trip the future drift rule.
const testNowOffset = 100000

// newTestChain returns an in-memory chain on mainnet parameters with a fixed
// clock.
func newTestChain(t *testing.T) (*Chain, *chaincfg.Params) {
	t.Helper()
	params := chaincfg.MainnetParams
	timeSource := func() time.Time {
		return time.Unix(int64(params.GenesisHeader.Timestamp)+testNowOffset, 0)
	}
	c, err := New(&Config{Params: &params, TimeSource: timeSource})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	return c, &params
}

// minedCoinbase returns a coinbase whose script encodes the height and a
// branch tag, keeping txids unique across heights and competing branches.
func minedCoinbase(height uint64, branch byte, amount uint64) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	script := []byte{0x51, branch, byte(height), byte(height >> 8)}
	tx.AddTxOut(wire.NewTxOut(amount, script))
	return tx
}

// solveHeader searches for a nonce satisfying the header's own target. At the
// pow limit roughly every second nonce solves, so the bound is generous.
func solveHeader(t *testing.T, header *wire.BlockHeader) {
	t.Helper()
	target := CompactToBig(header.Bits)
	for nonce := uint32(0); nonce < 1<<22; nonce++ {
		header.Nonce = nonce
		hash := header.BlockHash()
		if HashToBig(&hash).Cmp(target) <= 0 {
			return
		}
	}
	t.Fatal("no nonce solved the header")
}

// buildChildBlock assembles and solves a block on top of prevHash committing
// to the given transactions.
func buildChildBlock(t *testing.T, params *chaincfg.Params, prevHash chainhash.Hash,
	timestamp uint32, transactions ...*wire.MsgTx) *wire.MsgBlock {

	t.Helper()
	block := wire.NewMsgBlock(wire.NewBlockHeader(params.BlockVersion, &prevHash,
		&chainhash.ZeroHash, timestamp, params.PowLimitBits, 0))
	for _, tx := range transactions {
		block.AddTransaction(tx)
	}
	txIDs, err := block.TxIDs(wire.TxIDV2)
	if err != nil {
		t.Fatalf("TxIDs: unexpected error: %v", err)
	}
	block.Header.MerkleRoot = BuildMerkleRoot(txIDs)
	solveHeader(t, &block.Header)
	return block
}

// blockTimestamp spaces block timestamps so each is strictly after the median
// of its ancestors.
func blockTimestamp(params *chaincfg.Params, height uint64) uint32 {
	return params.GenesisHeader.Timestamp + uint32(height)*100
}

// processAndExpectMainChain submits a block and fails the test unless it lands
// on the selected chain.
func processAndExpectMainChain(t *testing.T, c *Chain, block *wire.MsgBlock) {
	t.Helper()
	onMainChain, err := c.ProcessBlock(block, BFNone)
	if err != nil {
		t.Fatalf("ProcessBlock(%s): unexpected error: %v", block.BlockHash(), err)
	}
	if !onMainChain {
		t.Fatalf("ProcessBlock(%s): block did not land on the selected chain",
			block.BlockHash())
	}
}

// TestGenesisState checks a fresh chain starts at the genesis header with an
// empty utxo set.
func TestGenesisState(t *testing.T) {
	c, params := newTestChain(t)
	genesisHash := params.GenesisHeader.BlockHash()
	if c.TipHash() != genesisHash {
		t.Fatalf("fresh tip is %s, want genesis %s", c.TipHash(), genesisHash)
	}
	if c.TipHeight() != 0 {
		t.Fatalf("fresh tip height is %d, want 0", c.TipHeight())
	}
	if !c.HaveBlock(&genesisHash) {
		t.Fatal("genesis missing from the block index")
	}
	if c.UTXOCount() != 0 {
		t.Fatalf("fresh utxo count is %d, want 0", c.UTXOCount())
	}
}

// TestChainGrowthAndReorg drives the full selection lifecycle: a main chain of
// three blocks, a competing branch that first sits on the side and then, with
// more cumulative work, takes over, switching the tip and the utxo set.
func TestChainGrowthAndReorg(t *testing.T) {
	c, params := newTestChain(t)
	genesisHash := params.GenesisHeader.BlockHash()

	mainBlocks := make([]*wire.MsgBlock, 0, 3)
	prevHash := genesisHash
	for height := uint64(1); height <= 3; height++ {
		subsidy := CalcBlockSubsidy(height, params)
		block := buildChildBlock(t, params, prevHash, blockTimestamp(params, height),
			minedCoinbase(height, 'a', subsidy))
		processAndExpectMainChain(t, c, block)
		mainBlocks = append(mainBlocks, block)
		prevHash = block.BlockHash()
	}
	if c.TipHeight() != 3 || c.UTXOCount() != 3 {
		t.Fatalf("after main chain: height %d, utxo count %d", c.TipHeight(), c.UTXOCount())
	}
	wantSupply := uint64(0)
	for height := uint64(1); height <= 3; height++ {
		wantSupply += CalcBlockSubsidy(height, params)
	}
	if got := c.UTXOSnapshot().TotalSupply(); got != wantSupply {
		t.Fatalf("supply after main chain is %d, want %d", got, wantSupply)
	}

	// A competing branch from genesis. Its first three blocks carry no more
	// work than the current chain and must stay on the side.
	sideBlocks := make([]*wire.MsgBlock, 0, 4)
	prevHash = genesisHash
	for height := uint64(1); height <= 4; height++ {
		subsidy := CalcBlockSubsidy(height, params)
		block := buildChildBlock(t, params, prevHash, blockTimestamp(params, height)+7,
			minedCoinbase(height, 'b', subsidy))
		sideBlocks = append(sideBlocks, block)
		prevHash = block.BlockHash()
	}
	for _, block := range sideBlocks[:3] {
		onMainChain, err := c.ProcessBlock(block, BFNone)
		if err != nil {
			t.Fatalf("side block %s: unexpected error: %v", block.BlockHash(), err)
		}
		if onMainChain {
			t.Fatalf("side block %s took over without more work", block.BlockHash())
		}
	}
	if c.TipHash() != mainBlocks[2].BlockHash() {
		t.Fatal("tip moved while the side branch had no more work")
	}

	// The fourth side block pushes the branch's cumulative work past the
	// tip and must trigger a reorganization.
	onMainChain, err := c.ProcessBlock(sideBlocks[3], BFNone)
	if err != nil {
		t.Fatalf("reorganizing block: unexpected error: %v", err)
	}
	if !onMainChain {
		t.Fatal("heavier branch did not become the selected chain")
	}
	if c.TipHash() != sideBlocks[3].BlockHash() || c.TipHeight() != 4 {
		t.Fatalf("after reorg: tip %s height %d", c.TipHash(), c.TipHeight())
	}

	// The utxo set now reflects the new branch only.
	utxoSet := c.UTXOSnapshot()
	if utxoSet.Count() != 4 {
		t.Fatalf("after reorg: utxo count %d, want 4", utxoSet.Count())
	}
	oldOutpoints, err := mainBlocks[0].Transactions[0].Outpoints(wire.TxIDV2)
	if err != nil {
		t.Fatalf("Outpoints: unexpected error: %v", err)
	}
	if utxoSet.Contains(oldOutpoints[0]) {
		t.Fatal("disconnected branch's coinbase output survived the reorg")
	}
	newOutpoints, err := sideBlocks[0].Transactions[0].Outpoints(wire.TxIDV2)
	if err != nil {
		t.Fatalf("Outpoints: unexpected error: %v", err)
	}
	if !utxoSet.Contains(newOutpoints[0]) {
		t.Fatal("connected branch's coinbase output missing after the reorg")
	}
}

// TestProcessBlockRejections exercises each header and sanity rule violation
// through ProcessBlock and checks rejections are permanent.
func TestProcessBlockRejections(t *testing.T) {
	c, params := newTestChain(t)
	genesisHash := params.GenesisHeader.BlockHash()
	subsidy := CalcBlockSubsidy(1, params)

	valid := buildChildBlock(t, params, genesisHash, blockTimestamp(params, 1),
		minedCoinbase(1, 'a', subsidy))
	processAndExpectMainChain(t, c, valid)

	// Resubmitting a known block fails.
	_, err := c.ProcessBlock(valid, BFNone)
	checkRuleError(t, err, ErrDuplicateBlock)

	// An unknown parent is rejected outright and the block is not indexed.
	unknownParent := chainhash.Hash{0xde, 0xad}
	orphan := buildChildBlock(t, params, unknownParent, blockTimestamp(params, 2),
		minedCoinbase(2, 'o', subsidy))
	_, err = c.ProcessBlock(orphan, BFNone)
	checkRuleError(t, err, ErrParentBlockUnknown)
	orphanHash := orphan.BlockHash()
	if c.HaveBlock(&orphanHash) {
		t.Fatal("orphan block was indexed")
	}

	tipHash := valid.BlockHash()
	subsidy2 := CalcBlockSubsidy(2, params)
	tests := []struct {
		name  string
		build func() *wire.MsgBlock
		want  ErrorCode
	}{
		{
			name: "wrong version",
			build: func() *wire.MsgBlock {
				block := buildChildBlock(t, params, tipHash, blockTimestamp(params, 2),
					minedCoinbase(2, 'v', subsidy2))
				block.Header.Version = params.BlockVersion + 1
				solveHeader(t, &block.Header)
				return block
			},
			want: ErrBlockVersion,
		},
		{
			name: "timestamp too far in the future",
			build: func() *wire.MsgBlock {
				drift := uint32(params.MaxFutureDrift.Seconds())
				timestamp := params.GenesisHeader.Timestamp + testNowOffset + drift + 10
				return buildChildBlock(t, params, tipHash, timestamp,
					minedCoinbase(2, 'f', subsidy2))
			},
			want: ErrTimeTooNew,
		},
		{
			name: "timestamp not after median",
			build: func() *wire.MsgBlock {
				// The median of genesis and the first block equals the
				// first block's own timestamp.
				return buildChildBlock(t, params, tipHash, blockTimestamp(params, 1),
					minedCoinbase(2, 'm', subsidy2))
			},
			want: ErrTimeTooOld,
		},
		{
			name: "wrong difficulty bits",
			build: func() *wire.MsgBlock {
				block := buildChildBlock(t, params, tipHash, blockTimestamp(params, 2),
					minedCoinbase(2, 'd', subsidy2))
				block.Header.Bits = BigToCompact(new(big.Int).Rsh(params.PowLimit, 1))
				solveHeader(t, &block.Header)
				return block
			},
			want: ErrUnexpectedDifficulty,
		},
		{
			name: "insufficient proof of work",
			build: func() *wire.MsgBlock {
				block := buildChildBlock(t, params, tipHash, blockTimestamp(params, 2),
					minedCoinbase(2, 'p', subsidy2))
				// Search the other way: a nonce whose hash exceeds the
				// target.
				target := CompactToBig(block.Header.Bits)
				for nonce := uint32(0); ; nonce++ {
					block.Header.Nonce = nonce
					hash := block.Header.BlockHash()
					if HashToBig(&hash).Cmp(target) > 0 {
						break
					}
				}
				return block
			},
			want: ErrHighHash,
		},
		{
			name: "tampered merkle root",
			build: func() *wire.MsgBlock {
				block := buildChildBlock(t, params, tipHash, blockTimestamp(params, 2),
					minedCoinbase(2, 'r', subsidy2))
				block.Header.MerkleRoot[0] ^= 0x01
				solveHeader(t, &block.Header)
				return block
			},
			want: ErrBadMerkleRoot,
		},
		{
			name: "no transactions",
			build: func() *wire.MsgBlock {
				return buildChildBlock(t, params, tipHash, blockTimestamp(params, 2))
			},
			want: ErrNoTransactions,
		},
		{
			name: "first transaction not a coinbase",
			build: func() *wire.MsgBlock {
				spend := newSpendTx(1, wire.Outpoint{TxID: chainhash.Hash{1}})
				return buildChildBlock(t, params, tipHash, blockTimestamp(params, 2), spend)
			},
			want: ErrFirstTxNotCoinbase,
		},
		{
			name: "second coinbase",
			build: func() *wire.MsgBlock {
				return buildChildBlock(t, params, tipHash, blockTimestamp(params, 2),
					minedCoinbase(2, 'c', subsidy2), minedCoinbase(2, 'e', 0))
			},
			want: ErrMultipleCoinbases,
		},
		{
			name: "coinbase over subsidy",
			build: func() *wire.MsgBlock {
				return buildChildBlock(t, params, tipHash, blockTimestamp(params, 2),
					minedCoinbase(2, 's', subsidy2+1))
			},
			want: ErrBadCoinbaseValue,
		},
	}
	for _, test := range tests {
		block := test.build()
		_, err := c.ProcessBlock(block, BFNone)
		if err == nil {
			t.Errorf("%s: expected error, got nil", test.name)
			continue
		}
		checkRuleError(t, err, test.want)
		if c.TipHash() != tipHash {
			t.Fatalf("%s: rejected block moved the tip", test.name)
		}

		// Rejections are permanent: resubmission replays the original
		// violation instead of re-validating.
		_, err = c.ProcessBlock(block, BFNone)
		if err == nil {
			t.Errorf("%s: resubmission of rejected block succeeded", test.name)
			continue
		}
		checkRuleError(t, err, test.want)

		// And children of a rejected block are invalid by ancestry.
		blockHash := block.BlockHash()
		child := buildChildBlock(t, params, blockHash, blockTimestamp(params, 3),
			minedCoinbase(3, 'x', CalcBlockSubsidy(3, params)))
		_, err = c.ProcessBlock(child, BFNone)
		checkRuleError(t, err, ErrInvalidAncestorBlock)
	}
}

// TestReorgAtomicityOnInvalidBranch submits a heavier branch whose middle
// block is invalid in a way only visible while connecting. The attempted
// reorganization must fail without disturbing the current chain, and the
// offending block and its descendants must be permanently rejected.
func TestReorgAtomicityOnInvalidBranch(t *testing.T) {
	c, params := newTestChain(t)
	genesisHash := params.GenesisHeader.BlockHash()

	prevHash := genesisHash
	for height := uint64(1); height <= 2; height++ {
		block := buildChildBlock(t, params, prevHash, blockTimestamp(params, height),
			minedCoinbase(height, 'a', CalcBlockSubsidy(height, params)))
		processAndExpectMainChain(t, c, block)
		prevHash = block.BlockHash()
	}
	tipHash := c.TipHash()
	supplyBefore := c.UTXOSnapshot().TotalSupply()

	// The branch's second block claims more than the subsidy. That passes
	// every standalone and header check and only fails on connect.
	sideBlocks := make([]*wire.MsgBlock, 0, 3)
	branchPrev := genesisHash
	for height := uint64(1); height <= 3; height++ {
		amount := CalcBlockSubsidy(height, params)
		if height == 2 {
			amount++
		}
		block := buildChildBlock(t, params, branchPrev, blockTimestamp(params, height)+7,
			minedCoinbase(height, 'b', amount))
		sideBlocks = append(sideBlocks, block)
		branchPrev = block.BlockHash()
	}
	for _, block := range sideBlocks[:2] {
		onMainChain, err := c.ProcessBlock(block, BFNone)
		if err != nil {
			t.Fatalf("side block %s: unexpected error: %v", block.BlockHash(), err)
		}
		if onMainChain {
			t.Fatal("side branch took over prematurely")
		}
	}

	// The third block makes the branch heavier and triggers the reorg,
	// which must fail on the over-subsidy block.
	_, err := c.ProcessBlock(sideBlocks[2], BFNone)
	checkRuleError(t, err, ErrBadCoinbaseValue)

	// Nothing about the selected chain changed.
	if c.TipHash() != tipHash || c.TipHeight() != 2 {
		t.Fatalf("failed reorg moved the tip to %s (height %d)", c.TipHash(), c.TipHeight())
	}
	if got := c.UTXOSnapshot().TotalSupply(); got != supplyBefore {
		t.Fatalf("failed reorg changed the supply: %d, want %d", got, supplyBefore)
	}

	// The invalid block and its descendant are now permanently rejected.
	_, err = c.ProcessBlock(sideBlocks[1], BFNone)
	checkRuleError(t, err, ErrBadCoinbaseValue)
	_, err = c.ProcessBlock(sideBlocks[2], BFNone)
	checkRuleError(t, err, ErrInvalidAncestorBlock)
}

// TestRestartedChainReorganizes drives a reorganization across a restart: the
// side branch and the main chain's rollback data are both accepted before the
// chain shuts down, so the reorganization after the restart must run entirely
// from the persisted block bodies and undo data.
func TestRestartedChainReorganizes(t *testing.T) {
	params := chaincfg.MainnetParams
	timeSource := func() time.Time {
		return time.Unix(int64(params.GenesisHeader.Timestamp)+testNowOffset, 0)
	}
	dbPath := filepath.Join(t.TempDir(), "chain")
	databaseContext, err := dbaccess.New(dbPath)
	if err != nil {
		t.Fatalf("dbaccess.New: unexpected error: %v", err)
	}

	c, err := New(&Config{
		Params:          &params,
		TimeSource:      timeSource,
		DatabaseContext: databaseContext,
	})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	genesisHash := params.GenesisHeader.BlockHash()

	mainBlocks := make([]*wire.MsgBlock, 0, 3)
	prevHash := genesisHash
	for height := uint64(1); height <= 3; height++ {
		block := buildChildBlock(t, &params, prevHash, blockTimestamp(&params, height),
			minedCoinbase(height, 'a', CalcBlockSubsidy(height, &params)))
		processAndExpectMainChain(t, c, block)
		mainBlocks = append(mainBlocks, block)
		prevHash = block.BlockHash()
	}

	// The whole competing branch is built now so it stays reproducible, but
	// only its first two blocks are submitted before the shutdown.
	sideBlocks := make([]*wire.MsgBlock, 0, 4)
	prevHash = genesisHash
	for height := uint64(1); height <= 4; height++ {
		block := buildChildBlock(t, &params, prevHash, blockTimestamp(&params, height)+7,
			minedCoinbase(height, 'b', CalcBlockSubsidy(height, &params)))
		sideBlocks = append(sideBlocks, block)
		prevHash = block.BlockHash()
	}
	for _, block := range sideBlocks[:2] {
		onMainChain, err := c.ProcessBlock(block, BFNone)
		if err != nil {
			t.Fatalf("side block %s: unexpected error: %v", block.BlockHash(), err)
		}
		if onMainChain {
			t.Fatal("side branch took over prematurely")
		}
	}

	if err := databaseContext.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	databaseContext, err = dbaccess.New(dbPath)
	if err != nil {
		t.Fatalf("dbaccess.New after restart: unexpected error: %v", err)
	}
	defer databaseContext.Close()
	restarted, err := New(&Config{
		Params:          &params,
		TimeSource:      timeSource,
		DatabaseContext: databaseContext,
	})
	if err != nil {
		t.Fatalf("New after restart: unexpected error: %v", err)
	}

	if restarted.TipHash() != mainBlocks[2].BlockHash() || restarted.TipHeight() != 3 {
		t.Fatalf("restarted tip is %s at height %d", restarted.TipHash(),
			restarted.TipHeight())
	}
	for _, block := range sideBlocks[:2] {
		blockHash := block.BlockHash()
		if !restarted.HaveBlock(&blockHash) {
			t.Fatalf("side block %s missing from the restarted index", blockHash)
		}
	}
	// Bodies of blocks accepted before the restart are served from disk.
	mainHash := mainBlocks[0].BlockHash()
	storedBlock, err := restarted.BlockByHash(&mainHash)
	if err != nil {
		t.Fatalf("BlockByHash after restart: unexpected error: %v", err)
	}
	if storedBlock.BlockHash() != mainHash {
		t.Fatalf("BlockByHash returned block %s, want %s",
			storedBlock.BlockHash(), mainHash)
	}

	// The third side block still carries no more work than the tip.
	onMainChain, err := restarted.ProcessBlock(sideBlocks[2], BFNone)
	if err != nil {
		t.Fatalf("side block after restart: unexpected error: %v", err)
	}
	if onMainChain {
		t.Fatal("side branch took over without more work")
	}

	// The fourth makes the branch heavier. The reorganization must detach
	// the main chain through undo data persisted before the restart and
	// attach side bodies read back from disk.
	onMainChain, err = restarted.ProcessBlock(sideBlocks[3], BFNone)
	if err != nil {
		t.Fatalf("reorganizing block after restart: unexpected error: %v", err)
	}
	if !onMainChain {
		t.Fatal("heavier branch did not become the selected chain after restart")
	}
	if restarted.TipHash() != sideBlocks[3].BlockHash() || restarted.TipHeight() != 4 {
		t.Fatalf("after restarted reorg: tip %s height %d", restarted.TipHash(),
			restarted.TipHeight())
	}

	utxoSet := restarted.UTXOSnapshot()
	if utxoSet.Count() != 4 {
		t.Fatalf("after restarted reorg: utxo count %d, want 4", utxoSet.Count())
	}
	oldOutpoints, err := mainBlocks[0].Transactions[0].Outpoints(wire.TxIDV2)
	if err != nil {
		t.Fatalf("Outpoints: unexpected error: %v", err)
	}
	if utxoSet.Contains(oldOutpoints[0]) {
		t.Fatal("disconnected branch's coinbase output survived the reorg")
	}
	newOutpoints, err := sideBlocks[3].Transactions[0].Outpoints(wire.TxIDV2)
	if err != nil {
		t.Fatalf("Outpoints: unexpected error: %v", err)
	}
	if !utxoSet.Contains(newOutpoints[0]) {
		t.Fatal("connected branch's coinbase output missing after the reorg")
	}
}

// TestProcessBlocksBatch runs the batched path: parallel pre-verification
// followed by in-order processing.
func TestProcessBlocksBatch(t *testing.T) {
	c, params := newTestChain(t)

	blocks := make([]*wire.MsgBlock, 0, 5)
	prevHash := params.GenesisHeader.BlockHash()
	for height := uint64(1); height <= 5; height++ {
		block := buildChildBlock(t, params, prevHash, blockTimestamp(params, height),
			minedCoinbase(height, 'a', CalcBlockSubsidy(height, params)))
		blocks = append(blocks, block)
		prevHash = block.BlockHash()
	}

	err := c.ProcessBlocks(context.Background(), blocks, BFNone)
	if err != nil {
		t.Fatalf("ProcessBlocks: unexpected error: %v", err)
	}
	if c.TipHeight() != 5 {
		t.Fatalf("batch processing reached height %d, want 5", c.TipHeight())
	}

	// A batch containing a structurally bad block fails pre-verification
	// before anything is processed.
	bad := buildChildBlock(t, params, prevHash, blockTimestamp(params, 6),
		minedCoinbase(6, 'a', CalcBlockSubsidy(6, params)))
	bad.Header.MerkleRoot[0] ^= 0x01
	solveHeader(t, &bad.Header)
	err = c.ProcessBlocks(context.Background(), []*wire.MsgBlock{bad}, BFNone)
	checkRuleError(t, err, ErrBadMerkleRoot)
	if c.TipHeight() != 5 {
		t.Fatal("failed batch advanced the tip")
	}
}
