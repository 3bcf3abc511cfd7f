// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package manager

import (
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"

	"github.com/ltcsuite/ltcspv/wallet"
)

// stubWallet is a minimal wallet.Adapter for manager tests: enough to
// register/look up/remove transactions and track the fee floor, with no
// addresses or UTXOs (filter-build tests live in package filtercontroller).
type stubWallet struct {
	mu  sync.Mutex
	txs map[chainhash.Hash]wallet.Tx
	fee dcrutil.Amount
}

func newStubWallet() *stubWallet {
	return &stubWallet{txs: make(map[chainhash.Hash]wallet.Tx)}
}

func (w *stubWallet) put(tx wallet.Tx) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txs[tx.Hash] = tx
}

func testTx(b byte) wallet.Tx {
	return wallet.Tx{Hash: blockHash(b), Signed: true}
}

func (w *stubWallet) UnusedAddresses(external bool, n int) []wallet.Hash160 { return nil }
func (w *stubWallet) AllAddresses() []wallet.Hash160                        { return nil }
func (w *stubWallet) UTXOs() []wallet.UTXO                                  { return nil }

func (w *stubWallet) TxsUnconfirmedOrWithinLastBlocks(tipHeight int64, n int64) []wallet.Tx {
	return nil
}

func (w *stubWallet) UnconfirmedTxs() []wallet.Tx {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []wallet.Tx
	for _, tx := range w.txs {
		if tx.Height == 0 {
			out = append(out, tx)
		}
	}
	return out
}

func (w *stubWallet) TxByHash(hash chainhash.Hash) (wallet.Tx, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx, ok := w.txs[hash]
	return tx, ok
}

func (w *stubWallet) RegisterTx(tx wallet.Tx) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txs[tx.Hash] = tx
}

func (w *stubWallet) RemoveTx(hash chainhash.Hash) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.txs, hash)
}

func (w *stubWallet) UpdateTxHeights(hashes []chainhash.Hash, height int64, timestamp int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range hashes {
		if tx, ok := w.txs[h]; ok {
			tx.Height = height
			tx.Timestamp = timestamp
			w.txs[h] = tx
		}
	}
}

func (w *stubWallet) SetUnconfirmedAfter(height int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for h, tx := range w.txs {
		if tx.Height > height {
			tx.Height = 0
			tx.Timestamp = 0
			w.txs[h] = tx
		}
	}
}

func (w *stubWallet) SetTxTimestamp(hash chainhash.Hash, timestamp int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if tx, ok := w.txs[hash]; ok {
		tx.Timestamp = timestamp
		w.txs[hash] = tx
	}
}

func (w *stubWallet) FeePerKb() dcrutil.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fee
}

func (w *stubWallet) SetFeePerKb(fee dcrutil.Amount) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fee = fee
}

var _ wallet.Adapter = (*stubWallet)(nil)
