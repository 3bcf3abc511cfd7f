// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store implements the default on-disk realization of the host
// "saveBlocks"/"savePeers" callback pair (spec §6) on top of goleveldb. A
// host application is free to roll its own persistence instead — Manager's
// Config only needs the callback pair, not this package — but most
// deployments want a working default, matching how the teacher lineage
// ships a concrete database backend alongside the pluggable interface it
// defines.
//
// Persistence here is deliberately simple: it is a key-value cache, not a
// block storage format in the full-node sense (spec §1 Non-goal). Blocks
// are encoded header-only (no merkle proof), keyed by block hash; peers are
// encoded one row per address, keyed by a monotonically increasing
// sequence number so SavePeers' "replace" semantics (n==0 or n>1) can drop
// the whole keyspace and rewrite it.
package store

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/slog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ltcsuite/ltcspv/addrmgr"
	"github.com/ltcsuite/ltcspv/blockstore"
)

// log is the package-level subsystem logger; callers wire a real backend
// via UseLogger. Defaults to a disabled logger so importing this package
// is silent by default.
var log = slog.Disabled

// UseLogger sets the subsystem logger used by package store.
func UseLogger(logger slog.Logger) {
	log = logger
}

var (
	blockPrefix = []byte("b/")
	peerPrefix  = []byte("p/")
)

// LevelDBStore is a goleveldb-backed implementation of Manager's
// saveBlocks/savePeers host callbacks.
type LevelDBStore struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) a LevelDB database at path.
func Open(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func blockKey(hash chainhash.Hash) []byte {
	key := make([]byte, 0, len(blockPrefix)+chainhash.HashSize)
	key = append(key, blockPrefix...)
	key = append(key, hash[:]...)
	return key
}

func peerKey(seq uint32) []byte {
	key := make([]byte, 0, len(peerPrefix)+4)
	key = append(key, peerPrefix...)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], seq)
	return append(key, n[:]...)
}

// blockRecord is the fixed-width header-only encoding of a MerkleBlock.
// Tx hashes are not persisted: a restart resumes sync from the tip rather
// than replaying matched transactions, the same tradeoff the spec's
// "full save of the most recent N blocks" makes for retarget-boundary
// headers (§4.2 "Persistence trigger").
const blockRecordLen = chainhash.HashSize*2 + 8 + 8 + 4

func encodeBlock(b *blockstore.MerkleBlock) []byte {
	buf := make([]byte, blockRecordLen)
	off := 0
	copy(buf[off:], b.BlockHash[:])
	off += chainhash.HashSize
	copy(buf[off:], b.PrevBlockHash[:])
	off += chainhash.HashSize
	binary.BigEndian.PutUint64(buf[off:], uint64(b.Height))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(b.Timestamp))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], b.DifficultyTarget)
	return buf
}

func decodeBlock(buf []byte) (*blockstore.MerkleBlock, error) {
	if len(buf) != blockRecordLen {
		return nil, fmt.Errorf("store: malformed block record (%d bytes)", len(buf))
	}
	b := &blockstore.MerkleBlock{}
	off := 0
	copy(b.BlockHash[:], buf[off:])
	off += chainhash.HashSize
	copy(b.PrevBlockHash[:], buf[off:])
	off += chainhash.HashSize
	b.Height = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	b.Timestamp = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	b.DifficultyTarget = binary.BigEndian.Uint32(buf[off:])
	return b, nil
}

// SaveBlocks implements the SaveBlocks host callback. n==1 appends without
// evicting prior entries; n==0 or n>1 replaces the whole keyspace (spec
// §6 "Save semantics").
func (s *LevelDBStore) SaveBlocks(blocks []*blockstore.MerkleBlock, n int) {
	batch := new(leveldb.Batch)
	if n != 1 {
		s.clearPrefix(batch, blockPrefix)
	}
	for _, b := range blocks {
		batch.Put(blockKey(b.BlockHash), encodeBlock(b))
	}
	if err := s.db.Write(batch, nil); err != nil {
		log.Errorf("store: SaveBlocks: %v", err)
	}
}

// LoadBlocks returns every persisted block, order unspecified; Manager's
// constructor splices them into the orphan pool and re-derives the chain
// (spec §6 "new").
func (s *LevelDBStore) LoadBlocks() ([]*blockstore.MerkleBlock, error) {
	iter := s.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer iter.Release()

	var blocks []*blockstore.MerkleBlock
	for iter.Next() {
		b, err := decodeBlock(iter.Value())
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, iter.Error()
}

func encodePeer(a *addrmgr.NetAddress) []byte {
	ip := a.IP.To16()
	buf := make([]byte, 16+2+8+8+1)
	off := 0
	copy(buf[off:], ip)
	off += 16
	binary.BigEndian.PutUint16(buf[off:], a.Port)
	off += 2
	binary.BigEndian.PutUint64(buf[off:], a.Services)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(a.Timestamp))
	off += 8
	buf[off] = a.Flags
	return buf
}

func decodePeer(buf []byte) (*addrmgr.NetAddress, error) {
	if len(buf) != 16+2+8+8+1 {
		return nil, fmt.Errorf("store: malformed peer record (%d bytes)", len(buf))
	}
	off := 0
	ip := make(net.IP, 16)
	copy(ip, buf[off:off+16])
	off += 16
	a := &addrmgr.NetAddress{IP: ip}
	a.Port = binary.BigEndian.Uint16(buf[off:])
	off += 2
	a.Services = binary.BigEndian.Uint64(buf[off:])
	off += 8
	a.Timestamp = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	a.Flags = buf[off]
	return a, nil
}

// SavePeers implements the SavePeers host callback with the same n==1
// append / otherwise-replace semantics as SaveBlocks.
func (s *LevelDBStore) SavePeers(peers []*addrmgr.NetAddress, n int) {
	batch := new(leveldb.Batch)
	if n != 1 {
		s.clearPrefix(batch, peerPrefix)
	}
	seq, err := s.nextPeerSeq()
	if err != nil {
		log.Errorf("store: SavePeers: %v", err)
		return
	}
	for _, a := range peers {
		batch.Put(peerKey(seq), encodePeer(a))
		seq++
	}
	if err := s.db.Write(batch, nil); err != nil {
		log.Errorf("store: SavePeers: %v", err)
	}
}

// LoadPeers returns every persisted peer address.
func (s *LevelDBStore) LoadPeers() ([]*addrmgr.NetAddress, error) {
	iter := s.db.NewIterator(util.BytesPrefix(peerPrefix), nil)
	defer iter.Release()

	var peers []*addrmgr.NetAddress
	for iter.Next() {
		a, err := decodePeer(iter.Value())
		if err != nil {
			return nil, err
		}
		peers = append(peers, a)
	}
	return peers, iter.Error()
}

func (s *LevelDBStore) nextPeerSeq() (uint32, error) {
	iter := s.db.NewIterator(util.BytesPrefix(peerPrefix), nil)
	defer iter.Release()
	var max uint32
	var any bool
	for iter.Next() {
		any = true
		seq := binary.BigEndian.Uint32(iter.Key()[len(peerPrefix):])
		if seq > max {
			max = seq
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if !any {
		return 0, nil
	}
	return max + 1, nil
}

func (s *LevelDBStore) clearPrefix(batch *leveldb.Batch, prefix []byte) {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
}
