// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockstore holds the in-memory header chain: the known-block
// index, the orphan pool, and the compiled-in checkpoint set (spec §3,
// §4.2). It owns none of the chain-extension logic — that lives in
// package chain — it only owns the three maps and the bookkeeping that
// keeps them consistent (height, §4.2 invariant B1).
package blockstore

import (
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/lru"
)

// UnknownHeight marks a MerkleBlock that has not yet been linked to a
// parent of known height (spec §3).
const UnknownHeight = -1

// MerkleBlock is a block header plus the subset of its transaction hashes
// that matched a peer's Bloom filter. Full merkle-proof construction and
// verification is a peripheral concern (spec §1) performed by the peer
// session before the block ever reaches this type.
type MerkleBlock struct {
	BlockHash        chainhash.Hash
	PrevBlockHash    chainhash.Hash
	Height           int64 // UnknownHeight until linked
	Timestamp        int64
	DifficultyTarget uint32
	TotalTx          uint32
	TxHashes         []chainhash.Hash
}

// IsHeaderOnly reports whether the block carries no matched transactions,
// i.e. it was relayed purely as a header (spec §4.2 case 1).
func (b *MerkleBlock) IsHeaderOnly() bool {
	return b.TotalTx == 0
}

// Store is the in-memory block index: the main-chain-and-forks map keyed
// by block hash, the orphan pool keyed by the orphan's prev-block hash, and
// the immutable checkpoint set keyed by height (spec §3, §9 "Checkpoint-
// keyed variants" — three independent maps, not shared infrastructure).
//
// Store is not safe for concurrent use; callers serialize access (in this
// module, the manager's single event-loop goroutine, spec §5).
type Store struct {
	blocks      map[chainhash.Hash]*MerkleBlock
	checkpoints map[int64]*MerkleBlock

	// orphans caps the orphan pool's memory footprint with an LRU eviction
	// policy, keyed by prev_block_hash. The spec (§9 Open Questions) flags
	// the orphan map as unbounded in the original source and asks
	// implementers to add a documented cap; lru.Map evicts the
	// least-recently-touched orphan once the bound is hit instead of
	// growing without limit.
	orphans *lru.Map[chainhash.Hash, *MerkleBlock]

	lastBlock  *MerkleBlock
	lastOrphan *MerkleBlock
}

// DefaultOrphanBound is the default cap on the number of orphans retained
// in memory at once.
const DefaultOrphanBound = 500

// New creates an empty Store with the default orphan bound.
func New() *Store {
	return NewWithOrphanBound(DefaultOrphanBound)
}

// NewWithOrphanBound creates an empty Store, bounding the orphan pool to at
// most n entries.
func NewWithOrphanBound(n int) *Store {
	return &Store{
		blocks:      make(map[chainhash.Hash]*MerkleBlock),
		checkpoints: make(map[int64]*MerkleBlock),
		orphans:     lru.NewMap[chainhash.Hash, *MerkleBlock](uint64(n)),
	}
}

// Block looks up a known block by its hash, searching both the main chain
// and retained forks.
func (s *Store) Block(hash chainhash.Hash) (*MerkleBlock, bool) {
	b, ok := s.blocks[hash]
	return b, ok
}

// HasBlock reports whether hash is already indexed (spec §4.2 case 6,
// duplicate detection).
func (s *Store) HasBlock(hash chainhash.Hash) bool {
	_, ok := s.blocks[hash]
	return ok
}

// PutBlock inserts or replaces a block in the main index. Once a block's
// height has been assigned it must never change (spec §3 invariant).
func (s *Store) PutBlock(b *MerkleBlock) {
	s.blocks[b.BlockHash] = b
}

// EvictBlock removes a block from the main index. Used by the chain engine
// to reclaim memory for non-retarget-boundary ancestors once they're no
// longer needed to verify a future retarget (spec §4.2).
func (s *Store) EvictBlock(hash chainhash.Hash) {
	delete(s.blocks, hash)
}

// LastBlock returns the current best tip, or nil if the store is empty.
func (s *Store) LastBlock() *MerkleBlock {
	return s.lastBlock
}

// SetLastBlock updates the current best tip. The chain engine is
// responsible for only ever moving it forward, except on an explicit
// reorg to a strictly longer fork (spec T3).
func (s *Store) SetLastBlock(b *MerkleBlock) {
	s.lastBlock = b
}

// OrphanByPrevHash looks up an orphan by its declared parent's hash.
func (s *Store) OrphanByPrevHash(prevHash chainhash.Hash) (*MerkleBlock, bool) {
	return s.orphans.Value(prevHash)
}

// LastOrphan returns the most recently stored orphan, used to suppress a
// redundant getblocks (spec §4.2 case 3).
func (s *Store) LastOrphan() *MerkleBlock {
	return s.lastOrphan
}

// PutOrphan stores b keyed by its prev-block hash. Once the pool holds as
// many entries as its bound (DefaultOrphanBound unless set through
// NewWithOrphanBound), lru.Map evicts the least-recently-touched
// orphan to make room.
func (s *Store) PutOrphan(b *MerkleBlock) {
	s.orphans.Add(b.PrevBlockHash, b)
	s.lastOrphan = b
}

// RemoveOrphan removes and returns the orphan keyed by prevHash, if any.
func (s *Store) RemoveOrphan(prevHash chainhash.Hash) (*MerkleBlock, bool) {
	b, ok := s.orphans.Value(prevHash)
	if ok {
		s.orphans.Delete(prevHash)
	}
	return b, ok
}

// OrphanCount returns the number of orphans currently retained.
func (s *Store) OrphanCount() int {
	return s.orphans.Len()
}

// PutCheckpoint registers a compiled-in checkpoint. Called once at
// construction time from chaincfg.Params.Checkpoints.
func (s *Store) PutCheckpoint(height int64, b *MerkleBlock) {
	s.checkpoints[height] = b
}

// CheckpointAt returns the checkpoint block at height, if one is compiled
// in.
func (s *Store) CheckpointAt(height int64) (*MerkleBlock, bool) {
	b, ok := s.checkpoints[height]
	return b, ok
}

// MostRecentCheckpointHeight returns the height of the highest checkpoint
// at or below the given height (spec §4.2 case 8, "fork below most recent
// checkpoint").
func (s *Store) MostRecentCheckpointHeight(atOrBelow int64) (int64, bool) {
	best := int64(-1)
	found := false
	for h := range s.checkpoints {
		if h <= atOrBelow && (!found || h > best) {
			best = h
			found = true
		}
	}
	return best, found
}

// Ancestor walks prev-block links starting at b until it reaches the given
// height and returns the ancestor there, or nil if the chain is broken or
// too short. Used by T1 verification and reorg common-ancestor search.
func (s *Store) Ancestor(b *MerkleBlock, height int64) *MerkleBlock {
	cur := b
	for cur != nil && cur.Height > height {
		parent, ok := s.blocks[cur.PrevBlockHash]
		if !ok {
			return nil
		}
		cur = parent
	}
	if cur != nil && cur.Height == height {
		return cur
	}
	return nil
}

// IsAncestor reports whether candidate is an ancestor of tip by walking
// prev-block links (spec §4.2 case 6, main-chain membership test).
func (s *Store) IsAncestor(candidate, tip *MerkleBlock) bool {
	if candidate == nil || tip == nil {
		return false
	}
	if candidate.Height > tip.Height {
		return false
	}
	a := s.Ancestor(tip, candidate.Height)
	return a != nil && a.BlockHash == candidate.BlockHash
}
