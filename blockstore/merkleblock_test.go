// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

func hash(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func TestPutOrphanEvictsOldest(t *testing.T) {
	s := NewWithOrphanBound(2)

	s.PutOrphan(&MerkleBlock{BlockHash: hash(1), PrevBlockHash: hash(0)})
	s.PutOrphan(&MerkleBlock{BlockHash: hash(2), PrevBlockHash: hash(1)})
	s.PutOrphan(&MerkleBlock{BlockHash: hash(3), PrevBlockHash: hash(2)})

	if s.OrphanCount() != 2 {
		t.Fatalf("OrphanCount() = %d, want 2", s.OrphanCount())
	}
	if _, ok := s.OrphanByPrevHash(hash(0)); ok {
		t.Errorf("oldest orphan was not evicted")
	}
	if _, ok := s.OrphanByPrevHash(hash(2)); !ok {
		t.Errorf("newest orphan missing")
	}
}

func TestAncestorWalksBackToHeight(t *testing.T) {
	s := New()
	var prev chainhash.Hash
	var tip *MerkleBlock
	for h := int64(0); h < 5; h++ {
		b := &MerkleBlock{BlockHash: hash(byte(h + 1)), PrevBlockHash: prev, Height: h}
		s.PutBlock(b)
		prev = b.BlockHash
		tip = b
	}
	s.SetLastBlock(tip)

	anc := s.Ancestor(tip, 2)
	if anc == nil || anc.Height != 2 {
		t.Fatalf("Ancestor(tip, 2) = %v, want height 2", anc)
	}

	if !s.IsAncestor(anc, tip) {
		t.Errorf("IsAncestor(anc, tip) = false, want true")
	}
}

func TestMostRecentCheckpointHeight(t *testing.T) {
	s := New()
	s.PutCheckpoint(100, &MerkleBlock{Height: 100})
	s.PutCheckpoint(200, &MerkleBlock{Height: 200})

	h, ok := s.MostRecentCheckpointHeight(150)
	if !ok || h != 100 {
		t.Fatalf("MostRecentCheckpointHeight(150) = (%d, %v), want (100, true)", h, ok)
	}

	if _, ok := s.MostRecentCheckpointHeight(50); ok {
		t.Errorf("MostRecentCheckpointHeight(50) found a checkpoint, want none")
	}
}
