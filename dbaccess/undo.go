package dbaccess

import (
	"github.com/tenebrium/tenebriumd/database"
	"github.com/tenebrium/tenebriumd/util/chainhash"
)

var undoBucket = database.MakeBucket([]byte("undo"))

// StoreUndoData stores the serialized rollback data of a connected block by
// its hash.
func StoreUndoData(context Context, blockHash *chainhash.Hash, serializedUndoData []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(undoBucket.Key(blockHash[:]), serializedUndoData)
}

// FetchUndoData returns the serialized rollback data of the block with the
// given hash.
func FetchUndoData(context Context, blockHash *chainhash.Hash) ([]byte, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	return accessor.Get(undoBucket.Key(blockHash[:]))
}

// RemoveUndoData deletes the rollback data of the block with the given hash.
// It is called when the block is disconnected, since only connected blocks
// can be rolled back.
func RemoveUndoData(context Context, blockHash *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(undoBucket.Key(blockHash[:]))
}
