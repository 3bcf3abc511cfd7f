// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines chain configuration parameters for the networks
// the SPV peer manager can talk to: the checkpoint list, DNS seeds, genesis
// block identity, and the difficulty-retarget constants needed to verify a
// header chain without full node validation.
package chaincfg

import (
	"math/big"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// DNSSeed identifies a DNS seed used to bootstrap the peer registry (§4.1).
type DNSSeed struct {
	// Host is the host of the DNS seed.
	Host string

	// HasFiltering indicates whether the seed supports filtering full
	// nodes by advertised service bits; a manager built for filtered SPV
	// use still queries it, it just can't narrow the result.
	HasFiltering bool
}

// Checkpoint identifies a block that a manager uses to safely bypass
// header verification below that point in the chain (§3, §4.2 B3).
type Checkpoint struct {
	Height          int64
	Hash            chainhash.Hash
	Timestamp       int64
	DifficultyBits  uint32
}

// Params defines a network by its identifying magic, genesis block, DNS
// seeds, and difficulty constants. Only the subset of a full node's network
// parameters the peer manager actually consumes is present here; anything
// script/consensus related beyond difficulty+checkpoints is out of scope
// (spec Non-goals).
type Params struct {
	// Name is the human readable identifier for the network, e.g. "mainnet".
	Name string

	// Net is the magic number identifying the network.
	Net uint32

	// DefaultPort is the default TCP port the network listens on.
	DefaultPort string

	// DNSSeeds is consulted by addrmgr.Discover when the peer pool runs dry.
	DNSSeeds []DNSSeed

	// GenesisHash is the hash of the genesis block, used as last_block when
	// a manager is constructed with no persisted chain state and no
	// checkpoint at or below earliest_key_time.
	GenesisHash chainhash.Hash

	// GenesisTimestamp is the genesis block's header timestamp in Unix
	// seconds.
	GenesisTimestamp int64

	// GenesisBits is the genesis block's compact difficulty target.
	GenesisBits uint32

	// PowLimit is the highest proof-of-work target permitted on the
	// network, i.e. the lowest possible difficulty.
	PowLimit *big.Int

	// PowLimitBits is PowLimit in the compact "nBits" representation.
	PowLimitBits uint32

	// TargetTimePerBlock is the average block interval the retarget
	// algorithm aims to hold.
	TargetTimePerBlock int64

	// DifficultyInterval is the number of blocks between difficulty
	// retargets (the "DIFFICULTY_INTERVAL" of the spec; 2016 for
	// Litecoin, same as Bitcoin).
	DifficultyInterval int64

	// RetargetAdjustmentFactor bounds how much the difficulty may change
	// in a single retarget, in either direction.
	RetargetAdjustmentFactor int64

	// Checkpoints is ordered from oldest to newest height.
	Checkpoints []Checkpoint
}

// CheckpointByHeight returns the checkpoint at the given height, if any.
func (p *Params) CheckpointByHeight(height int64) (Checkpoint, bool) {
	for _, c := range p.Checkpoints {
		if c.Height == height {
			return c, true
		}
	}
	return Checkpoint{}, false
}

// LatestCheckpointBefore returns the highest checkpoint at or before height,
// or false if there is none (the caller should fall back to the genesis
// block).
func (p *Params) LatestCheckpointBefore(height int64) (Checkpoint, bool) {
	best := Checkpoint{}
	found := false
	for _, c := range p.Checkpoints {
		if c.Height <= height && (!found || c.Height > best.Height) {
			best = c
			found = true
		}
	}
	return best, found
}

// LatestCheckpointBeforeTime returns the highest checkpoint whose timestamp
// is at or before t, used by rescan (§4.8) to pick a new starting point from
// a wallet's earliest_key_time.
func (p *Params) LatestCheckpointBeforeTime(t int64) (Checkpoint, bool) {
	best := Checkpoint{}
	found := false
	for _, c := range p.Checkpoints {
		if c.Timestamp <= t && (!found || c.Timestamp > best.Timestamp) {
			best = c
			found = true
		}
	}
	return best, found
}

func hashFromStr(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

// BigToCompact converts a whole number N to a compact representation using
// an unsigned 32-bit number. This mirrors the representation used by the
// reference implementation's "nBits" field.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	exponent := uint(len(n.Bytes()))
	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CompactToBig converts a compact "nBits" representation to a big.Int, the
// inverse of BigToCompact, used when verifying a retarget (§4.3).
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}
