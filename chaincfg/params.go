// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"
	"time"

	"github.com/tenebrium/tenebriumd/wire"
)

// Network identifies a tenebrium network. It is persisted in the database
// meta namespace so a data directory cannot be reused across networks.
type Network uint32

// Constants used to indicate the network.
const (
	// Mainnet represents the main tenebrium network.
	Mainnet Network = 0x74656e31

	// Testnet represents the public test network.
	Testnet Network = 0x74656e74

	// Simnet represents the simulation test network.
	Simnet Network = 0x74656e73

	// Devnet represents the development network.
	Devnet Network = 0x74656e64
)

var networkStrings = map[Network]string{
	Mainnet: "mainnet",
	Testnet: "testnet",
	Simnet:  "simnet",
	Devnet:  "devnet",
}

// String returns the network in human-readable form.
func (n Network) String() string {
	if s, ok := networkStrings[n]; ok {
		return s
	}
	return "unknown"
}

// Params defines a tenebrium network by its parameters.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the network identifier persisted with the chain state.
	Net Network

	// GenesisHeader is the first header of the chain.
	GenesisHeader wire.BlockHeader

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256.
	PowLimit *big.Int

	// PowLimitBits is the compact form of PowLimit.
	PowLimitBits uint32

	// BlockVersion is the sole accepted block header version.
	BlockVersion int32

	// TargetTimePerBlock is the desired amount of time between blocks.
	TargetTimePerBlock time.Duration

	// DifficultyWindow is the number of blocks between difficulty
	// retargets.
	DifficultyWindow uint64

	// MaxRetargetFactor limits how much the target may move in a single
	// retarget, in either direction.
	MaxRetargetFactor int64

	// SubsidyHalvingInterval is the number of blocks between coinbase
	// subsidy halvings.
	SubsidyHalvingInterval uint64

	// MaxFutureDrift is how far ahead of adjusted time a header timestamp
	// may be.
	MaxFutureDrift time.Duration

	// TimestampMedianWindow is the number of recent ancestors whose median
	// timestamp a new header must exceed.
	TimestampMedianWindow int
}

// mainPowLimit is the highest proof of work value a block can have:
// the target decoded from the 0x207fffff compact form, mantissa 0x7fffff
// shifted into the most significant bytes of a uint256.
var mainPowLimit = new(big.Int).Lsh(big.NewInt(0x7fffff), 232)

// MainnetParams defines the network parameters for the main network.
var MainnetParams = Params{
	Name:                   "mainnet",
	Net:                    Mainnet,
	GenesisHeader:          genesisHeader,
	PowLimit:               mainPowLimit,
	PowLimitBits:           0x207fffff,
	BlockVersion:           1,
	TargetTimePerBlock:     time.Second * 600,
	DifficultyWindow:       10,
	MaxRetargetFactor:      4,
	SubsidyHalvingInterval: 210000,
	MaxFutureDrift:         time.Hour * 2,
	TimestampMedianWindow:  11,
}

// TestnetParams defines the network parameters for the test network. It
// shares the main network's consensus rules under a distinct network id.
var TestnetParams = Params{
	Name:                   "testnet",
	Net:                    Testnet,
	GenesisHeader:          genesisHeader,
	PowLimit:               mainPowLimit,
	PowLimitBits:           0x207fffff,
	BlockVersion:           1,
	TargetTimePerBlock:     time.Second * 600,
	DifficultyWindow:       10,
	MaxRetargetFactor:      4,
	SubsidyHalvingInterval: 210000,
	MaxFutureDrift:         time.Hour * 2,
	TimestampMedianWindow:  11,
}

// SimnetParams defines the network parameters for the simulation network.
// Short block times and a tiny halving interval make consensus transitions
// reachable in tests.
var SimnetParams = Params{
	Name:                   "simnet",
	Net:                    Simnet,
	GenesisHeader:          genesisHeader,
	PowLimit:               mainPowLimit,
	PowLimitBits:           0x207fffff,
	BlockVersion:           1,
	TargetTimePerBlock:     time.Second,
	DifficultyWindow:       10,
	MaxRetargetFactor:      4,
	SubsidyHalvingInterval: 100,
	MaxFutureDrift:         time.Hour * 2,
	TimestampMedianWindow:  11,
}

// DevnetParams defines the network parameters for the development network.
var DevnetParams = Params{
	Name:                   "devnet",
	Net:                    Devnet,
	GenesisHeader:          genesisHeader,
	PowLimit:               mainPowLimit,
	PowLimitBits:           0x207fffff,
	BlockVersion:           1,
	TargetTimePerBlock:     time.Second * 600,
	DifficultyWindow:       10,
	MaxRetargetFactor:      4,
	SubsidyHalvingInterval: 210000,
	MaxFutureDrift:         time.Hour * 2,
	TimestampMedianWindow:  11,
}
