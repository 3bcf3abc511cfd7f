// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bloom implements the BIP37 Bloom filter the filter controller
// (package filtercontroller) builds from wallet state and ships to peers
// via filterload (spec §4.4). Merkle-proof construction and verification
// — checking that a peer's returned merkleblock actually matches the
// filter against the block's merkle root — is a peripheral concern
// performed by the peer session (spec §1) and is not implemented here;
// this package only implements the filter data structure itself.
package bloom

import (
	"math"

	"github.com/ltcsuite/ltcspv/internal/murmur3"
)

// UpdateFlag controls which matched outputs cause the filter to update
// itself automatically on the peer side (BIP37).
type UpdateFlag uint8

const (
	UpdateNone UpdateFlag = iota
	UpdateAll
	UpdateP2PubkeyOnly
)

const (
	// maxFilterBytes bounds the serialized filter the way BIP37 does.
	maxFilterBytes = 36000

	// maxHashFuncs bounds the number of hash rounds.
	maxHashFuncs = 50

	ln2Squared = 0.4804530139182014 // math.Ln2 * math.Ln2
)

// Filter is a BIP37 Bloom filter: a bit array tested with nHashFuncs
// independent murmur3 hash rounds, each seeded with a different multiple of
// a fixed constant plus the filter's tweak (spec §4.4 "Each peer receives a filter keyed by a
// peer-specific nonce").
type Filter struct {
	bits       []byte
	nHashFuncs uint32
	tweak      uint32
	update     UpdateFlag
}

// NewFilter creates a filter sized for n elements at the given false
// positive rate, tweaked with a peer-specific nonce.
func NewFilter(n uint32, tweak uint32, fpRate float64, update UpdateFlag) *Filter {
	bitsCount := uint32(-1 * float64(n) * math.Log(fpRate) / ln2Squared)
	if bitsCount > maxFilterBytes*8 {
		bitsCount = maxFilterBytes * 8
	}
	if bitsCount < 8 {
		bitsCount = 8
	}
	byteCount := (bitsCount + 7) / 8

	hashFuncs := uint32(float64(byteCount*8) / float64(n) * math.Ln2)
	if hashFuncs > maxHashFuncs {
		hashFuncs = maxHashFuncs
	}
	if hashFuncs < 1 {
		hashFuncs = 1
	}

	return &Filter{
		bits:       make([]byte, byteCount),
		nHashFuncs: hashFuncs,
		tweak:      tweak,
		update:     update,
	}
}

func (f *Filter) hash(hashNum uint32, data []byte) uint32 {
	seed := hashNum*0xfba4c795 + f.tweak
	return murmur3.Sum32(seed, data) % uint32(len(f.bits)*8)
}

// Add inserts data into the filter.
func (f *Filter) Add(data []byte) {
	for i := uint32(0); i < f.nHashFuncs; i++ {
		idx := f.hash(i, data)
		f.bits[idx/8] |= 1 << (idx % 8)
	}
}

// AddOutPoint inserts the (txid, index) tuple used to watch for a UTXO
// being spent (spec §4.4 Build: "each (utxo.txid ‖ utxo.index) tuple,
// little-endian index").
func (f *Filter) AddOutPoint(txid [32]byte, index uint32) {
	buf := make([]byte, 36)
	copy(buf, txid[:])
	buf[32] = byte(index)
	buf[33] = byte(index >> 8)
	buf[34] = byte(index >> 16)
	buf[35] = byte(index >> 24)
	f.Add(buf)
}

// Matches reports whether data matches the filter. A false positive is
// possible by design; a false negative is not.
func (f *Filter) Matches(data []byte) bool {
	for i := uint32(0); i < f.nHashFuncs; i++ {
		idx := f.hash(i, data)
		if f.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// UpdateFlag returns the BIP37 update behavior this filter was built with.
func (f *Filter) UpdateFlag() UpdateFlag {
	return f.update
}

// Serialize returns the wire representation of the filter for filterload:
// the bit array, hash function count, tweak, and update flag.
func (f *Filter) Serialize() (bits []byte, nHashFuncs uint32, tweak uint32, update UpdateFlag) {
	out := make([]byte, len(f.bits))
	copy(out, f.bits)
	return out, f.nHashFuncs, f.tweak, f.update
}
