package dbaccess

import (
	"github.com/tenebrium/tenebriumd/database"
)

var utxoBucket = database.MakeBucket([]byte("utxo"))

// AddToUTXOSet adds the given outpoint-entry pair to the database's UTXO set.
// outpointKey is the 36-byte txid|index form and serializedEntry the
// amount|scriptLen|script form.
func AddToUTXOSet(context Context, outpointKey []byte, serializedEntry []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(utxoBucket.Key(outpointKey), serializedEntry)
}

// RemoveFromUTXOSet removes the given outpoint from the database's UTXO set.
func RemoveFromUTXOSet(context Context, outpointKey []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(utxoBucket.Key(outpointKey))
}

// GetFromUTXOSet returns the serialized entry for the given outpoint, or
// ErrNotFound if it is not part of the UTXO set.
func GetFromUTXOSet(context Context, outpointKey []byte) ([]byte, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	return accessor.Get(utxoBucket.Key(outpointKey))
}

// HasUTXOEntry returns whether the given outpoint is part of the UTXO set.
func HasUTXOEntry(context Context, outpointKey []byte) (bool, error) {
	accessor, err := context.accessor()
	if err != nil {
		return false, err
	}
	return accessor.Has(utxoBucket.Key(outpointKey))
}

// UTXOSetCursor opens a cursor over all UTXO entries.
func UTXOSetCursor(context Context) (database.Cursor, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	return accessor.Cursor(utxoBucket)
}
