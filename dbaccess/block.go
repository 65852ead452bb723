package dbaccess

import (
	"github.com/tenebrium/tenebriumd/database"
	"github.com/tenebrium/tenebriumd/util/chainhash"
)

var blocksBucket = database.MakeBucket([]byte("blocks"))

// StoreBlock stores the serialized block by its hash.
func StoreBlock(context Context, blockHash *chainhash.Hash, serializedBlock []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(blocksBucket.Key(blockHash[:]), serializedBlock)
}

// FetchBlock returns the serialized block with the given hash.
func FetchBlock(context Context, blockHash *chainhash.Hash) ([]byte, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	return accessor.Get(blocksBucket.Key(blockHash[:]))
}

// HasBlock returns whether a block with the given hash exists.
func HasBlock(context Context, blockHash *chainhash.Hash) (bool, error) {
	accessor, err := context.accessor()
	if err != nil {
		return false, err
	}
	return accessor.Has(blocksBucket.Key(blockHash[:]))
}
