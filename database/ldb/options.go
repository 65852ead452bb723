package ldb

import "github.com/syndtr/goleveldb/leveldb/opt"

// tenebriumdOptions are the leveldb options the node opens its stores with.
// Values are written once per accepted block and read back in bulk on
// startup, so the cache and write buffer lean large and compression stays
// off; the utxo keyspace is accessed by exact key, so seek compaction only
// causes write stalls.
var tenebriumdOptions = opt.Options{
	Compression:            opt.NoCompression,
	BlockCacheCapacity:     256 * opt.MiB,
	WriteBuffer:            128 * opt.MiB,
	DisableSeeksCompaction: true,
}

// Options returns the opt.Options struct a database is opened with. It's
// defined as a variable for the sake of testing.
var Options = func() *opt.Options {
	return &tenebriumdOptions
}
