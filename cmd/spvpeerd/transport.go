// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/ltcsuite/ltcspv/bloom"
	"github.com/ltcsuite/ltcspv/peer"
)

// dialTransport is the daemon's stock peer.Transport. It establishes the
// real TCP connection a production peer needs, but the Bitcoin/Litecoin
// wire message framing itself is an explicit Non-goal of this module
// (spec §1) — that codec lives in a separate package a host supplies.
// Every Send* method here returns nil without writing anything; a real
// deployment replaces dialTransport with a codec that actually encodes and
// writes these messages to conn.
type dialTransport struct {
	conn net.Conn
}

func dial(addr string, timeout time.Duration) (*dialTransport, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &dialTransport{conn: conn}, nil
}

func (t *dialTransport) Close() error { return t.conn.Close() }

func (t *dialTransport) SendGetBlocks(locator []chainhash.Hash, stop chainhash.Hash) error {
	return nil
}

func (t *dialTransport) SendGetHeaders(locator []chainhash.Hash, stop chainhash.Hash) error {
	return nil
}

func (t *dialTransport) SendGetData(invs []peer.InvVect) error { return nil }
func (t *dialTransport) SendMempool() error                    { return nil }
func (t *dialTransport) SendInv(invs []peer.InvVect) error      { return nil }
func (t *dialTransport) SendPing(nonce uint64) error            { return nil }
func (t *dialTransport) SendFilterLoad(bits []byte, nHashFuncs uint32, tweak uint32, flag bloom.UpdateFlag) error {
	return nil
}
func (t *dialTransport) SendGetAddr() error { return nil }
