package dbaccess

import (
	"encoding/binary"

	"github.com/tenebrium/tenebriumd/database"
	"github.com/tenebrium/tenebriumd/util/chainhash"
)

var (
	metaBucket = database.MakeBucket([]byte("meta"))

	schemaVersionKey = metaBucket.Key([]byte("schema_version"))
	networkIDKey     = metaBucket.Key([]byte("network_id"))
	tipHashKey       = metaBucket.Key([]byte("tip_hash"))
	tipHeightKey     = metaBucket.Key([]byte("tip_height"))
	utxoCountKey     = metaBucket.Key([]byte("utxo_count"))
)

// StoreSchemaVersion stores the database schema version.
func StoreSchemaVersion(context Context, schemaVersion uint32) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(schemaVersionKey, binary.LittleEndian.AppendUint32(nil, schemaVersion))
}

// FetchSchemaVersion retrieves the database schema version. Returns
// ErrNotFound on a fresh database.
func FetchSchemaVersion(context Context) (uint32, error) {
	accessor, err := context.accessor()
	if err != nil {
		return 0, err
	}
	serialized, err := accessor.Get(schemaVersionKey)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(serialized), nil
}

// StoreNetworkID stores the network identifier the database belongs to.
func StoreNetworkID(context Context, networkID uint32) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(networkIDKey, binary.LittleEndian.AppendUint32(nil, networkID))
}

// FetchNetworkID retrieves the network identifier the database belongs to.
func FetchNetworkID(context Context) (uint32, error) {
	accessor, err := context.accessor()
	if err != nil {
		return 0, err
	}
	serialized, err := accessor.Get(networkIDKey)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(serialized), nil
}

// StoreTip stores the selected tip hash and its height.
func StoreTip(context Context, tipHash *chainhash.Hash, tipHeight uint64) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	err = accessor.Put(tipHashKey, tipHash.CloneBytes())
	if err != nil {
		return err
	}
	return accessor.Put(tipHeightKey, binary.LittleEndian.AppendUint32(nil, uint32(tipHeight)))
}

// FetchTipHash retrieves the selected tip hash. Returns ErrNotFound on a
// fresh database.
func FetchTipHash(context Context) (*chainhash.Hash, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	serialized, err := accessor.Get(tipHashKey)
	if err != nil {
		return nil, err
	}
	return chainhash.NewHash(serialized)
}

// FetchTipHeight retrieves the selected tip height.
func FetchTipHeight(context Context) (uint64, error) {
	accessor, err := context.accessor()
	if err != nil {
		return 0, err
	}
	serialized, err := accessor.Get(tipHeightKey)
	if err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(serialized)), nil
}

// StoreUTXOCount stores the number of entries in the utxo set.
func StoreUTXOCount(context Context, count uint64) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(utxoCountKey, binary.LittleEndian.AppendUint64(nil, count))
}

// FetchUTXOCount retrieves the number of entries in the utxo set.
func FetchUTXOCount(context Context) (uint64, error) {
	accessor, err := context.accessor()
	if err != nil {
		return 0, err
	}
	serialized, err := accessor.Get(utxoCountKey)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(serialized), nil
}
