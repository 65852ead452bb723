package dbaccess

import (
	"encoding/binary"
	"math/big"

	"github.com/tenebrium/tenebriumd/database"
	"github.com/tenebrium/tenebriumd/util/chainhash"
)

var (
	headersBucket = database.MakeBucket([]byte("headers"))
	heightsBucket = database.MakeBucket([]byte("heights"))
	workBucket    = database.MakeBucket([]byte("work"))
)

// StoreHeader stores the serialized header of a block by its hash.
func StoreHeader(context Context, blockHash *chainhash.Hash, serializedHeader []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(headersBucket.Key(blockHash[:]), serializedHeader)
}

// FetchHeader returns the serialized header of the block with the given hash.
func FetchHeader(context Context, blockHash *chainhash.Hash) ([]byte, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	return accessor.Get(headersBucket.Key(blockHash[:]))
}

// HasHeader returns whether a header with the given hash exists.
func HasHeader(context Context, blockHash *chainhash.Hash) (bool, error) {
	accessor, err := context.accessor()
	if err != nil {
		return false, err
	}
	return accessor.Has(headersBucket.Key(blockHash[:]))
}

// HeadersCursor opens a cursor over all stored headers.
func HeadersCursor(context Context) (database.Cursor, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	return accessor.Cursor(headersBucket)
}

// StoreHeight stores the height of a block by its hash.
func StoreHeight(context Context, blockHash *chainhash.Hash, height uint64) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(heightsBucket.Key(blockHash[:]),
		binary.LittleEndian.AppendUint32(nil, uint32(height)))
}

// FetchHeight returns the height of the block with the given hash.
func FetchHeight(context Context, blockHash *chainhash.Hash) (uint64, error) {
	accessor, err := context.accessor()
	if err != nil {
		return 0, err
	}
	serialized, err := accessor.Get(heightsBucket.Key(blockHash[:]))
	if err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(serialized)), nil
}

// StoreWork stores the cumulative work of a block by its hash, as big-endian
// big.Int bytes.
func StoreWork(context Context, blockHash *chainhash.Hash, work *big.Int) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(workBucket.Key(blockHash[:]), work.Bytes())
}

// FetchWork returns the cumulative work of the block with the given hash.
func FetchWork(context Context, blockHash *chainhash.Hash) (*big.Int, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	serialized, err := accessor.Get(workBucket.Key(blockHash[:]))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(serialized), nil
}
