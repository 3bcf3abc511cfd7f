// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet describes the Wallet adapter: the external collaborator
// the manager calls into for addresses, UTXOs, and transaction lifecycle
// (spec §6). This package only defines the interface and a small in-memory
// reference implementation used by tests; a real wallet is expected to
// supply its own, possibly backed by on-disk storage.
package wallet

import (
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
)

// Hash160 is a RIPEMD160(SHA256(pubkey-or-script)) digest, the form a
// Bloom filter matches against for P2PKH/P2SH outputs.
type Hash160 [20]byte

// UTXO is an unspent transaction output the wallet is watching.
type UTXO struct {
	TxHash chainhash.Hash
	Index  uint32
}

// Tx is the subset of a transaction's shape the manager needs: its hash,
// whether it carries a signature on every input, and the inputs' previous
// outpoints (needed to walk the "unconfirmed ancestors" closure in
// publish, spec §4.6).
type Tx struct {
	Hash      chainhash.Hash
	Signed    bool
	Inputs    []chainhash.Hash // hashes of the txs the inputs spend
	Height    int64            // 0 means unconfirmed
	Timestamp int64            // 0 means unverified (spec §4.5 "Verification signal")
}

// Adapter is the interface the manager consumes into the wallet (spec §6).
// Implementations must be internally synchronized; the manager does not
// assume they are re-entrant with its own event loop, but never calls them
// with anything manager-internal locked (there is no manager-internal lock
// to begin with — see package manager).
type Adapter interface {
	// UnusedAddresses returns up to n unused addresses on the given chain
	// (external=false is the internal/change chain), used to pre-generate
	// spare addresses ahead of the gap limit (spec §4.4 Build).
	UnusedAddresses(external bool, n int) []Hash160

	// AllAddresses enumerates every address the wallet has ever derived,
	// used when sizing and seeding the Bloom filter.
	AllAddresses() []Hash160

	// UTXOs enumerates the wallet's current unspent outputs.
	UTXOs() []UTXO

	// TxsUnconfirmedOrWithinLastBlocks returns transactions that are
	// unconfirmed, or confirmed within the last n blocks of tipHeight
	// (spec §4.4 Build: "unconfirmed-or-confirmed-within-last-100-blocks").
	TxsUnconfirmedOrWithinLastBlocks(tipHeight int64, n int64) []Tx

	// UnconfirmedTxs returns every transaction the wallet considers
	// unconfirmed (timestamp 0 or height unknown).
	UnconfirmedTxs() []Tx

	// TxByHash looks up a registered transaction by hash.
	TxByHash(hash chainhash.Hash) (Tx, bool)

	// RegisterTx adds tx to the wallet if it is relevant, e.g. spends or
	// creates a watched output.
	RegisterTx(tx Tx)

	// RemoveTx drops a transaction the manager has determined will never
	// confirm (spec §4.5 "unrelayed tx sweep").
	RemoveTx(hash chainhash.Hash)

	// UpdateTxHeights stamps the given transactions as confirmed at
	// height with the given block timestamp (spec §4.2 cases 5/6, and
	// reorg re-application).
	UpdateTxHeights(hashes []chainhash.Hash, height int64, timestamp int64)

	// SetUnconfirmedAfter marks every transaction with height > height as
	// unconfirmed (spec §4.2 "Reorg").
	SetUnconfirmedAfter(height int64)

	// SetTxTimestamp stamps a single transaction's timestamp, used for
	// the verification signal (timestamp 0 -> now, spec §4.5) and for
	// demoting a relayed-then-rejected tx back to unverified (timestamp
	// 0, spec §7).
	SetTxTimestamp(hash chainhash.Hash, timestamp int64)

	// FeePerKb returns the wallet's current fee-per-kb setting.
	FeePerKb() dcrutil.Amount

	// SetFeePerKb raises (or sets) the wallet's fee-per-kb floor (spec
	// §4.7).
	SetFeePerKb(fee dcrutil.Amount)
}

// Memory is a reference Adapter backed by plain Go maps, sufficient for
// tests and for small/offline wallets. It is safe for concurrent use.
type Memory struct {
	mu sync.Mutex

	addrs       []Hash160
	usedExtIdx  int
	usedIntIdx  int
	spareExt    []Hash160
	spareInt    []Hash160
	utxos       []UTXO
	txs         map[chainhash.Hash]Tx
	feePerKb    dcrutil.Amount
}

// NewMemory creates an empty in-memory wallet adapter.
func NewMemory() *Memory {
	return &Memory{txs: make(map[chainhash.Hash]Tx)}
}

// SeedAddresses installs the wallet's known address set directly; intended
// for tests and for genesis import of a recovered seed.
func (m *Memory) SeedAddresses(spareExternal, spareInternal []Hash160) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spareExt = spareExternal
	m.spareInt = spareInternal
}

func (m *Memory) UnusedAddresses(external bool, n int) []Hash160 {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.spareInt
	if external {
		pool = m.spareExt
	}
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]Hash160, n)
	copy(out, pool[:n])
	return out
}

func (m *Memory) AllAddresses() []Hash160 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Hash160, 0, len(m.addrs)+len(m.spareExt)+len(m.spareInt))
	out = append(out, m.addrs...)
	out = append(out, m.spareExt...)
	out = append(out, m.spareInt...)
	return out
}

func (m *Memory) UTXOs() []UTXO {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UTXO, len(m.utxos))
	copy(out, m.utxos)
	return out
}

// AddUTXO registers a UTXO the wallet should watch; used by tests.
func (m *Memory) AddUTXO(u UTXO) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utxos = append(m.utxos, u)
}

func (m *Memory) TxsUnconfirmedOrWithinLastBlocks(tipHeight int64, n int64) []Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Tx
	for _, tx := range m.txs {
		if tx.Height == 0 || tx.Timestamp == 0 || tx.Height > tipHeight-n {
			out = append(out, tx)
		}
	}
	return out
}

func (m *Memory) UnconfirmedTxs() []Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Tx
	for _, tx := range m.txs {
		if tx.Height == 0 || tx.Timestamp == 0 {
			out = append(out, tx)
		}
	}
	return out
}

func (m *Memory) TxByHash(hash chainhash.Hash) (Tx, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[hash]
	return tx, ok
}

func (m *Memory) RegisterTx(tx Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.Hash] = tx
}

func (m *Memory) RemoveTx(hash chainhash.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txs, hash)
}

func (m *Memory) UpdateTxHeights(hashes []chainhash.Hash, height int64, timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		if tx, ok := m.txs[h]; ok {
			tx.Height = height
			tx.Timestamp = timestamp
			m.txs[h] = tx
		}
	}
}

func (m *Memory) SetUnconfirmedAfter(height int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, tx := range m.txs {
		if tx.Height > height {
			tx.Height = 0
			tx.Timestamp = 0
			m.txs[h] = tx
		}
	}
}

func (m *Memory) SetTxTimestamp(hash chainhash.Hash, timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.txs[hash]; ok {
		tx.Timestamp = timestamp
		m.txs[hash] = tx
	}
}

func (m *Memory) FeePerKb() dcrutil.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feePerKb
}

func (m *Memory) SetFeePerKb(fee dcrutil.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feePerKb = fee
}
