// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"math/big"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/ltcsuite/ltcspv/blockstore"
	"github.com/ltcsuite/ltcspv/chaincfg"
	"github.com/ltcsuite/ltcspv/wallet"
)

func testParams() *chaincfg.Params {
	limit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 240), big.NewInt(1))
	return &chaincfg.Params{
		Name:                     "regtest",
		PowLimit:                 limit,
		PowLimitBits:             chaincfg.BigToCompact(limit),
		TargetTimePerBlock:       150,
		DifficultyInterval:       4,
		RetargetAdjustmentFactor: 4,
	}
}

func blockHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func newEngine() (*Engine, *blockstore.Store, *wallet.Memory) {
	store := blockstore.New()
	w := wallet.NewMemory()
	genesis := &blockstore.MerkleBlock{
		BlockHash: blockHash(0),
		Height:    0,
		Timestamp: 1000,
	}
	store.PutBlock(genesis)
	store.SetLastBlock(genesis)
	// The wallet's earliest key time lies far after every test block, so
	// header-only blocks (TotalTx == 0) are old enough to be processed
	// rather than discarded as header-only-too-new.
	e := New(testParams(), store, w, nil, 1_000_000_000, Hooks{})
	return e, store, w
}

func TestExtendsTipLinearChain(t *testing.T) {
	e, store, _ := newEngine()

	var prevHash chainhash.Hash = blockHash(0)
	for i := byte(1); i <= 3; i++ {
		b := &blockstore.MerkleBlock{
			BlockHash:     blockHash(i),
			PrevBlockHash: prevHash,
			Timestamp:     1000 + int64(i)*150,
		}
		res := e.ProcessBlock(b, Context{FilterActive: true}, 100000)
		if res != ResultExtendsTip {
			t.Fatalf("block %d: ProcessBlock = %v, want ResultExtendsTip", i, res)
		}
		prevHash = b.BlockHash
	}

	tip := store.LastBlock()
	if tip.Height != 3 {
		t.Fatalf("tip height = %d, want 3", tip.Height)
	}
	if tip.BlockHash != blockHash(3) {
		t.Fatalf("tip hash mismatch")
	}
}

func TestFilterUpdateInFlightDiscardsBlock(t *testing.T) {
	e, store, _ := newEngine()

	b := &blockstore.MerkleBlock{
		BlockHash:     blockHash(1),
		PrevBlockHash: blockHash(0),
		TotalTx:       1,
	}
	res := e.ProcessBlock(b, Context{FilterActive: false}, 100000)
	if res != ResultFilterUpdateInFlight {
		t.Fatalf("ProcessBlock = %v, want ResultFilterUpdateInFlight", res)
	}
	if store.HasBlock(blockHash(1)) {
		t.Errorf("block was stored while filter update was in flight (violates T6)")
	}
}

func TestOrphanThenResolvedByParent(t *testing.T) {
	e, store, w := newEngine()

	w.RegisterTx(wallet.Tx{Hash: blockHash(0xC1)})

	// C arrives first, referencing a parent (B) we don't have yet.
	c := &blockstore.MerkleBlock{
		BlockHash:     blockHash(2),
		PrevBlockHash: blockHash(1),
		Timestamp:     2000,
		TxHashes:      []chainhash.Hash{blockHash(0xC1)},
		TotalTx:       1,
	}
	res := e.ProcessBlock(c, Context{FilterActive: true}, 2100)
	if res != ResultOrphan {
		t.Fatalf("ProcessBlock(C) = %v, want ResultOrphan", res)
	}
	if store.OrphanCount() != 1 {
		t.Fatalf("OrphanCount() = %d, want 1", store.OrphanCount())
	}

	// B arrives, whose parent is the genesis tip.
	b := &blockstore.MerkleBlock{
		BlockHash:     blockHash(1),
		PrevBlockHash: blockHash(0),
		Timestamp:     1900,
	}
	res = e.ProcessBlock(b, Context{FilterActive: true}, 2100)
	if res != ResultExtendsTip {
		t.Fatalf("ProcessBlock(B) = %v, want ResultExtendsTip", res)
	}

	tip := store.LastBlock()
	if tip.BlockHash != blockHash(2) {
		t.Fatalf("tip = %x, want C pulled out of orphans", tip.BlockHash)
	}
	if store.OrphanCount() != 0 {
		t.Errorf("OrphanCount() = %d, want 0 after resolution", store.OrphanCount())
	}
	if tx, _ := w.TxByHash(blockHash(0xC1)); tx.Timestamp == 0 {
		t.Errorf("wallet tx in resolved orphan C was not stamped with a height timestamp")
	}
}

func TestReorgDemotesOldChainAndPromotesNewChain(t *testing.T) {
	e, store, w := newEngine()

	w.RegisterTx(wallet.Tx{Hash: blockHash(0xA2)})
	w.RegisterTx(wallet.Tx{Hash: blockHash(0xB2)})
	w.RegisterTx(wallet.Tx{Hash: blockHash(0xB3)})

	a1 := &blockstore.MerkleBlock{BlockHash: blockHash(11), PrevBlockHash: blockHash(0), Timestamp: 1100}
	if res := e.ProcessBlock(a1, Context{FilterActive: true}, 10000); res != ResultExtendsTip {
		t.Fatalf("A1: %v", res)
	}
	a2 := &blockstore.MerkleBlock{
		BlockHash: blockHash(12), PrevBlockHash: blockHash(11), Timestamp: 1250,
		TxHashes: []chainhash.Hash{blockHash(0xA2)}, TotalTx: 1,
	}
	if res := e.ProcessBlock(a2, Context{FilterActive: true}, 10000); res != ResultExtendsTip {
		t.Fatalf("A2: %v", res)
	}

	// Fork: B1' shares A1's parent (genesis).
	b1 := &blockstore.MerkleBlock{BlockHash: blockHash(21), PrevBlockHash: blockHash(0), Timestamp: 1100}
	res := e.ProcessBlock(b1, Context{FilterActive: true}, 10000)
	if res != ResultDuplicateFork && res != ResultForkBelowCheckpoint {
		t.Fatalf("B1: %v, want a forking classification", res)
	}
	b2 := &blockstore.MerkleBlock{
		BlockHash: blockHash(22), PrevBlockHash: blockHash(21), Timestamp: 1260,
		TxHashes: []chainhash.Hash{blockHash(0xB2)}, TotalTx: 1,
	}
	e.ProcessBlock(b2, Context{FilterActive: true}, 10000)
	b3 := &blockstore.MerkleBlock{
		BlockHash: blockHash(23), PrevBlockHash: blockHash(22), Timestamp: 1400,
		TxHashes: []chainhash.Hash{blockHash(0xB3)}, TotalTx: 1,
	}
	res = e.ProcessBlock(b3, Context{FilterActive: true}, 10000)
	if res != ResultReorg {
		t.Fatalf("B3: %v, want ResultReorg", res)
	}

	tip := store.LastBlock()
	if tip.BlockHash != blockHash(23) {
		t.Fatalf("tip after reorg = %x, want B3", tip.BlockHash)
	}

	if txA2, _ := w.TxByHash(blockHash(0xA2)); txA2.Timestamp != 0 {
		t.Errorf("A2's tx should be demoted to unconfirmed after reorg")
	}
	if txB2, _ := w.TxByHash(blockHash(0xB2)); txB2.Timestamp == 0 {
		t.Errorf("B2's tx should be re-registered at its new height")
	}
	if txB3, _ := w.TxByHash(blockHash(0xB3)); txB3.Timestamp == 0 {
		t.Errorf("B3's tx should be registered at its new height")
	}
}

func TestCheckpointMismatchRejectsBlock(t *testing.T) {
	e, store, _ := newEngine()
	badHash := blockHash(9)
	store.PutCheckpoint(1, &blockstore.MerkleBlock{Height: 1, BlockHash: blockHash(1)})

	misbehaved := false
	e.Hooks.MarkMisbehaving = func(reason string) { misbehaved = true }

	b := &blockstore.MerkleBlock{BlockHash: badHash, PrevBlockHash: blockHash(0), Timestamp: 1100}
	res := e.ProcessBlock(b, Context{FilterActive: true}, 10000)
	if res != ResultInvalid {
		t.Fatalf("ProcessBlock = %v, want ResultInvalid", res)
	}
	if !misbehaved {
		t.Errorf("peer was not marked misbehaving on checkpoint mismatch")
	}
}

func TestBadDifficultyRejectsBlockAtRetargetBoundary(t *testing.T) {
	e, store, _ := newEngine()

	var prevHash chainhash.Hash = blockHash(0)
	for i := byte(1); i <= 3; i++ {
		b := &blockstore.MerkleBlock{
			BlockHash: blockHash(i), PrevBlockHash: prevHash,
			Timestamp: 1000 + int64(i)*150, DifficultyTarget: e.Params.PowLimitBits,
		}
		if res := e.ProcessBlock(b, Context{FilterActive: true}, 100000); res != ResultExtendsTip {
			t.Fatalf("setup block %d: %v", i, res)
		}
		prevHash = b.BlockHash
	}

	misbehaved := false
	e.Hooks.MarkMisbehaving = func(reason string) { misbehaved = true }

	// Height 4 is a retarget boundary (DifficultyInterval==4). Claim a
	// wildly wrong target.
	bad := &blockstore.MerkleBlock{
		BlockHash: blockHash(4), PrevBlockHash: prevHash,
		Timestamp: 2000, DifficultyTarget: 0x1d00ffff,
	}
	res := e.ProcessBlock(bad, Context{FilterActive: true}, 100000)
	if res != ResultInvalid {
		t.Fatalf("ProcessBlock = %v, want ResultInvalid", res)
	}
	if !misbehaved {
		t.Errorf("peer was not marked misbehaving on bad difficulty")
	}
	if store.HasBlock(blockHash(4)) {
		t.Errorf("invalid block must not be stored")
	}
}
