// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"math/big"

	"github.com/ltcsuite/ltcspv/blockstore"
	"github.com/ltcsuite/ltcspv/chaincfg"
)

// Verifier checks a block's claimed difficulty_target against the
// retarget computed from the interval-start block (spec §4.3). It is
// pluggable so a caller can substitute an auxiliary-PoW or regtest-style
// rule without touching the chain engine itself.
type Verifier func(params *chaincfg.Params, block, prevBlock, intervalStart *blockstore.MerkleBlock) bool

// DefaultVerifier implements the classic Bitcoin-family retarget: the next
// interval's target scales linearly with how far actual block production
// over the interval strayed from TargetTimePerBlock * DifficultyInterval,
// clamped by RetargetAdjustmentFactor and PowLimit.
func DefaultVerifier(params *chaincfg.Params, block, prevBlock, intervalStart *blockstore.MerkleBlock) bool {
	if prevBlock == nil || intervalStart == nil {
		return false
	}

	actualTimespan := prevBlock.Timestamp - intervalStart.Timestamp
	targetTimespan := params.TargetTimePerBlock * params.DifficultyInterval

	minTimespan := targetTimespan / params.RetargetAdjustmentFactor
	maxTimespan := targetTimespan * params.RetargetAdjustmentFactor
	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	} else if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	oldTarget := chaincfg.CompactToBig(prevBlock.DifficultyTarget)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(targetTimespan))
	if newTarget.Cmp(params.PowLimit) > 0 {
		newTarget = params.PowLimit
	}

	return compactEquivalent(block.DifficultyTarget, newTarget)
}

// compactEquivalent reports whether the compact representation of want
// round-trips to the same compact value as got, absorbing the lossy
// compact-float encoding the same way comparing the two raw nBits fields
// would.
func compactEquivalent(got uint32, want *big.Int) bool {
	return got == chaincfg.BigToCompact(want)
}
