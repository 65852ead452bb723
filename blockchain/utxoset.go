package blockchain

import (
	"encoding/binary"
	"fmt"

	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// UTXOEntry houses details about an individual transaction output in a utxo
// set such as its amount and locking script.
type UTXOEntry struct {
	Amount       uint64
	ScriptPubKey []byte
}

// Clone returns a deep copy of the entry.
func (entry *UTXOEntry) Clone() *UTXOEntry {
	clone := &UTXOEntry{Amount: entry.Amount}
	if len(entry.ScriptPubKey) > 0 {
		clone.ScriptPubKey = make([]byte, len(entry.ScriptPubKey))
		copy(clone.ScriptPubKey, entry.ScriptPubKey)
	}
	return clone
}

// utxoCollection represents a set of UTXOs indexed by their outpoints.
type utxoCollection map[wire.Outpoint]*UTXOEntry

func (uc utxoCollection) add(outpoint wire.Outpoint, entry *UTXOEntry) {
	uc[outpoint] = entry
}

func (uc utxoCollection) remove(outpoint wire.Outpoint) {
	delete(uc, outpoint)
}

func (uc utxoCollection) get(outpoint wire.Outpoint) (*UTXOEntry, bool) {
	entry, ok := uc[outpoint]
	return entry, ok
}

func (uc utxoCollection) contains(outpoint wire.Outpoint) bool {
	_, ok := uc[outpoint]
	return ok
}

func (uc utxoCollection) clone() utxoCollection {
	clone := make(utxoCollection, len(uc))
	for outpoint, entry := range uc {
		clone[outpoint] = entry.Clone()
	}
	return clone
}

// BlockUndoData captures everything needed to roll a connected block back
// out of a FullUTXOSet: the entries the block spent and the outpoints it
// created. Outpoints both created and spent within the same block appear in
// neither list.
type BlockUndoData struct {
	SpentEntries     map[wire.Outpoint]*UTXOEntry
	CreatedOutpoints []wire.Outpoint
}

// FullUTXOSet represents the full UTXO set of the chain. Mutation happens
// exclusively through ApplyBlock and RollbackBlock; a failed ApplyBlock
// leaves the set untouched.
type FullUTXOSet struct {
	utxoCollection utxoCollection
}

// NewFullUTXOSet creates a new, empty utxo set.
func NewFullUTXOSet() *FullUTXOSet {
	return &FullUTXOSet{utxoCollection: utxoCollection{}}
}

// Get returns the entry for the given outpoint, and whether it exists.
func (fus *FullUTXOSet) Get(outpoint wire.Outpoint) (*UTXOEntry, bool) {
	return fus.utxoCollection.get(outpoint)
}

// Contains returns whether the given outpoint is part of the set.
func (fus *FullUTXOSet) Contains(outpoint wire.Outpoint) bool {
	return fus.utxoCollection.contains(outpoint)
}

// Count returns the number of entries in the set.
func (fus *FullUTXOSet) Count() uint64 {
	return uint64(len(fus.utxoCollection))
}

// TotalSupply returns the sum of all entry amounts in the set.
func (fus *FullUTXOSet) TotalSupply() uint64 {
	var supply uint64
	for _, entry := range fus.utxoCollection {
		supply += entry.Amount
	}
	return supply
}

// Clone returns a deep copy of the set.
func (fus *FullUTXOSet) Clone() *FullUTXOSet {
	return &FullUTXOSet{utxoCollection: fus.utxoCollection.clone()}
}

// forEach runs fn over every outpoint-entry pair in the set, stopping at the
// first error.
func (fus *FullUTXOSet) forEach(fn func(wire.Outpoint, *UTXOEntry) error) error {
	for outpoint, entry := range fus.utxoCollection {
		if err := fn(outpoint, entry); err != nil {
			return err
		}
	}
	return nil
}

// restoreEntry puts an entry back into the set. It is used when loading a
// persisted set from disk.
func (fus *FullUTXOSet) restoreEntry(outpoint wire.Outpoint, entry *UTXOEntry) {
	fus.utxoCollection.add(outpoint, entry)
}

// checkedAdd returns a+b and whether the sum stayed within the uint64 range.
// Amount accumulation must use it; a wrapped sum would let a transaction mint
// value out of thin air.
func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}

// ApplyBlock verifies the given block against the set and, only if the whole
// block verifies, applies it, returning the undo data needed to roll it back.
//
// Verification covers: every input of every non-coinbase transaction resolves
// to a live entry (in-block chaining allowed), no created outpoint already
// exists, no transaction creates more value than it consumes, every value sum
// stays within the uint64 range, and the coinbase outputs do not exceed the
// block subsidy plus collected fees.
//
// On any rule violation a RuleError is returned and the set is untouched.
func (fus *FullUTXOSet) ApplyBlock(block *wire.MsgBlock, height uint64,
	txIDVersion wire.TxIDVersion, subsidy uint64) (*BlockUndoData, error) {

	if len(block.Transactions) == 0 {
		return nil, ruleError(ErrNoTransactions, "block does not contain any transactions")
	}

	// Phase 1: verify against the current set, staging every change
	// without mutating.
	staged := make(utxoCollection)
	spentFromSet := make(map[wire.Outpoint]*UTXOEntry)

	var totalFees uint64
	for i, tx := range block.Transactions {
		if i == 0 {
			// The coinbase spends nothing; its value check runs
			// after fees are known.
			continue
		}
		var totalIn uint64
		for _, txIn := range tx.TxIn {
			outpoint := txIn.PreviousOutpoint
			entry, ok := staged.get(outpoint)
			if !ok {
				if _, alreadySpent := spentFromSet[outpoint]; alreadySpent {
					str := fmt.Sprintf("output %s already spent in this block", outpoint)
					return nil, ruleError(ErrMissingTxOut, str)
				}
				entry, ok = fus.utxoCollection.get(outpoint)
				if !ok {
					str := fmt.Sprintf("output %s referenced from transaction %d "+
						"either does not exist or has already been spent", outpoint, i)
					return nil, ruleError(ErrMissingTxOut, str)
				}
				spentFromSet[outpoint] = entry
			} else {
				// Spending an in-block creation: drop it from the
				// staged additions instead of recording undo data.
				staged.remove(outpoint)
			}
			totalIn, ok = checkedAdd(totalIn, entry.Amount)
			if !ok {
				str := fmt.Sprintf("total input value of transaction %d "+
					"overflows", i)
				return nil, ruleError(ErrValueOverflow, str)
			}
		}

		var totalOut uint64
		for _, txOut := range tx.TxOut {
			var ok bool
			totalOut, ok = checkedAdd(totalOut, txOut.Amount)
			if !ok {
				str := fmt.Sprintf("total output value of transaction %d "+
					"overflows", i)
				return nil, ruleError(ErrValueOverflow, str)
			}
		}
		if totalOut > totalIn {
			str := fmt.Sprintf("transaction %d spends %d which is more than its "+
				"input value of %d", i, totalOut, totalIn)
			return nil, ruleError(ErrSpendTooHigh, str)
		}
		var ok bool
		totalFees, ok = checkedAdd(totalFees, totalIn-totalOut)
		if !ok {
			return nil, ruleError(ErrValueOverflow, "accumulated fees overflow")
		}

		if err := fus.stageOutputs(tx, txIDVersion, staged, spentFromSet); err != nil {
			return nil, err
		}
	}

	// Coinbase value rule: outputs are bounded by subsidy plus the fees
	// collected from this block's transactions.
	coinbase := block.Transactions[0]
	var coinbaseOut uint64
	for _, txOut := range coinbase.TxOut {
		var ok bool
		coinbaseOut, ok = checkedAdd(coinbaseOut, txOut.Amount)
		if !ok {
			str := fmt.Sprintf("total coinbase value for block at height %d "+
				"overflows", height)
			return nil, ruleError(ErrValueOverflow, str)
		}
	}
	maxCoinbaseOut, ok := checkedAdd(subsidy, totalFees)
	if !ok {
		str := fmt.Sprintf("subsidy plus fees for block at height %d overflows",
			height)
		return nil, ruleError(ErrValueOverflow, str)
	}
	if coinbaseOut > maxCoinbaseOut {
		str := fmt.Sprintf("coinbase transaction for block at height %d pays %d "+
			"which is more than the expected maximum of %d", height, coinbaseOut,
			maxCoinbaseOut)
		return nil, ruleError(ErrBadCoinbaseValue, str)
	}
	if err := fus.stageOutputs(coinbase, txIDVersion, staged, spentFromSet); err != nil {
		return nil, err
	}

	// Phase 2: the block fully verified, mutate the set.
	for outpoint := range spentFromSet {
		fus.utxoCollection.remove(outpoint)
	}
	createdOutpoints := make([]wire.Outpoint, 0, len(staged))
	for outpoint, entry := range staged {
		fus.utxoCollection.add(outpoint, entry)
		createdOutpoints = append(createdOutpoints, outpoint)
	}

	return &BlockUndoData{
		SpentEntries:     spentFromSet,
		CreatedOutpoints: createdOutpoints,
	}, nil
}

// stageOutputs adds the outputs of tx to the staged collection, rejecting
// outpoints that already exist in the set or in the staged additions.
func (fus *FullUTXOSet) stageOutputs(tx *wire.MsgTx, txIDVersion wire.TxIDVersion,
	staged utxoCollection, spentFromSet map[wire.Outpoint]*UTXOEntry) error {

	outpoints, err := tx.Outpoints(txIDVersion)
	if err != nil {
		return ruleError(ErrInvalidTx, err.Error())
	}
	for i, outpoint := range outpoints {
		// Re-creating an outpoint spent earlier in the same block is
		// also rejected: it would make the undo data ambiguous.
		_, isSpent := spentFromSet[outpoint]
		if staged.contains(outpoint) || fus.utxoCollection.contains(outpoint) || isSpent {
			str := fmt.Sprintf("transaction output %s already exists", outpoint)
			return ruleError(ErrDuplicateOutput, str)
		}
		staged.add(outpoint, &UTXOEntry{
			Amount:       tx.TxOut[i].Amount,
			ScriptPubKey: tx.TxOut[i].ScriptPubKey,
		})
	}
	return nil
}

// RollbackBlock reverts a previously applied block using its undo data:
// created outpoints are removed and spent entries are restored. Undo data
// must be applied tip-first.
func (fus *FullUTXOSet) RollbackBlock(undo *BlockUndoData) error {
	for _, outpoint := range undo.CreatedOutpoints {
		if !fus.utxoCollection.contains(outpoint) {
			return AssertError(fmt.Sprintf("rollback of outpoint %s that is "+
				"not part of the utxo set", outpoint))
		}
	}
	for outpoint := range undo.SpentEntries {
		if fus.utxoCollection.contains(outpoint) {
			return AssertError(fmt.Sprintf("rollback would restore outpoint %s "+
				"which is already part of the utxo set", outpoint))
		}
	}

	for _, outpoint := range undo.CreatedOutpoints {
		fus.utxoCollection.remove(outpoint)
	}
	for outpoint, entry := range undo.SpentEntries {
		fus.utxoCollection.add(outpoint, entry)
	}
	return nil
}

// The disk forms below bind the database representation: outpoint keys are
// txid(32)|index(u32 LE) and entries are amount(u64 LE)|scriptLen(u64 LE)|script.

// outpointKeySize is the serialized size of an outpoint key.
const outpointKeySize = chainhash.HashSize + 4

// SerializeOutpointKey returns the 36-byte database key form of an outpoint.
func SerializeOutpointKey(outpoint wire.Outpoint) []byte {
	key := make([]byte, outpointKeySize)
	copy(key, outpoint.TxID[:])
	binary.LittleEndian.PutUint32(key[chainhash.HashSize:], outpoint.Index)
	return key
}

// DeserializeOutpointKey decodes a 36-byte database key into an outpoint.
func DeserializeOutpointKey(key []byte) (wire.Outpoint, error) {
	if len(key) != outpointKeySize {
		return wire.Outpoint{}, AssertError(fmt.Sprintf(
			"outpoint key is %d bytes - want %d", len(key), outpointKeySize))
	}
	var outpoint wire.Outpoint
	copy(outpoint.TxID[:], key[:chainhash.HashSize])
	outpoint.Index = binary.LittleEndian.Uint32(key[chainhash.HashSize:])
	return outpoint, nil
}

// SerializeUTXOEntry returns the database value form of an entry.
func SerializeUTXOEntry(entry *UTXOEntry) []byte {
	serialized := make([]byte, 0, 16+len(entry.ScriptPubKey))
	serialized = binary.LittleEndian.AppendUint64(serialized, entry.Amount)
	serialized = binary.LittleEndian.AppendUint64(serialized, uint64(len(entry.ScriptPubKey)))
	return append(serialized, entry.ScriptPubKey...)
}

// DeserializeUTXOEntry decodes the database value form of an entry.
func DeserializeUTXOEntry(serialized []byte) (*UTXOEntry, error) {
	if len(serialized) < 16 {
		return nil, AssertError(fmt.Sprintf(
			"utxo entry is %d bytes - want at least 16", len(serialized)))
	}
	amount := binary.LittleEndian.Uint64(serialized[:8])
	scriptLen := binary.LittleEndian.Uint64(serialized[8:16])
	if scriptLen != uint64(len(serialized)-16) {
		return nil, AssertError(fmt.Sprintf(
			"utxo entry claims a script of %d bytes but carries %d",
			scriptLen, len(serialized)-16))
	}
	entry := &UTXOEntry{Amount: amount}
	if scriptLen > 0 {
		entry.ScriptPubKey = make([]byte, scriptLen)
		copy(entry.ScriptPubKey, serialized[16:])
	}
	return entry, nil
}

// SerializeBlockUndoData returns the database value form of a block's undo
// data: spentCount(u64 LE) | {outpointKey(36) | entryLen(u64 LE) | entry}* |
// createdCount(u64 LE) | {outpointKey(36)}*.
func SerializeBlockUndoData(undo *BlockUndoData) []byte {
	serialized := make([]byte, 0, 16+
		len(undo.SpentEntries)*(outpointKeySize+24)+
		len(undo.CreatedOutpoints)*outpointKeySize)
	serialized = binary.LittleEndian.AppendUint64(serialized, uint64(len(undo.SpentEntries)))
	for outpoint, entry := range undo.SpentEntries {
		serialized = append(serialized, SerializeOutpointKey(outpoint)...)
		serializedEntry := SerializeUTXOEntry(entry)
		serialized = binary.LittleEndian.AppendUint64(serialized, uint64(len(serializedEntry)))
		serialized = append(serialized, serializedEntry...)
	}
	serialized = binary.LittleEndian.AppendUint64(serialized, uint64(len(undo.CreatedOutpoints)))
	for _, outpoint := range undo.CreatedOutpoints {
		serialized = append(serialized, SerializeOutpointKey(outpoint)...)
	}
	return serialized
}

// DeserializeBlockUndoData decodes the database value form of a block's undo
// data.
func DeserializeBlockUndoData(serialized []byte) (*BlockUndoData, error) {
	short := func() error {
		return AssertError(fmt.Sprintf("undo data of %d bytes is truncated",
			len(serialized)))
	}
	offset := 0
	readUint64 := func() (uint64, error) {
		if len(serialized)-offset < 8 {
			return 0, short()
		}
		v := binary.LittleEndian.Uint64(serialized[offset:])
		offset += 8
		return v, nil
	}
	readOutpoint := func() (wire.Outpoint, error) {
		if len(serialized)-offset < outpointKeySize {
			return wire.Outpoint{}, short()
		}
		outpoint, err := DeserializeOutpointKey(serialized[offset : offset+outpointKeySize])
		offset += outpointKeySize
		return outpoint, err
	}

	spentCount, err := readUint64()
	if err != nil {
		return nil, err
	}
	undo := &BlockUndoData{SpentEntries: make(map[wire.Outpoint]*UTXOEntry, spentCount)}
	for i := uint64(0); i < spentCount; i++ {
		outpoint, err := readOutpoint()
		if err != nil {
			return nil, err
		}
		entryLen, err := readUint64()
		if err != nil {
			return nil, err
		}
		if uint64(len(serialized)-offset) < entryLen {
			return nil, short()
		}
		entry, err := DeserializeUTXOEntry(serialized[offset : offset+int(entryLen)])
		if err != nil {
			return nil, err
		}
		offset += int(entryLen)
		undo.SpentEntries[outpoint] = entry
	}

	createdCount, err := readUint64()
	if err != nil {
		return nil, err
	}
	undo.CreatedOutpoints = make([]wire.Outpoint, 0, createdCount)
	for i := uint64(0); i < createdCount; i++ {
		outpoint, err := readOutpoint()
		if err != nil {
			return nil, err
		}
		undo.CreatedOutpoints = append(undo.CreatedOutpoints, outpoint)
	}
	if offset != len(serialized) {
		return nil, AssertError(fmt.Sprintf("undo data has %d trailing bytes",
			len(serialized)-offset))
	}
	return undo, nil
}
