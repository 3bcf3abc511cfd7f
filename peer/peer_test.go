// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/ltcsuite/ltcspv/bloom"
)

type fakeTransport struct {
	closed    bool
	pings     []uint64
	getBlocks int
	filters   int
}

func (f *fakeTransport) Close() error { f.closed = true; return nil }
func (f *fakeTransport) SendGetBlocks(locator []chainhash.Hash, stop chainhash.Hash) error {
	f.getBlocks++
	return nil
}
func (f *fakeTransport) SendGetHeaders(locator []chainhash.Hash, stop chainhash.Hash) error {
	return nil
}
func (f *fakeTransport) SendGetData(invs []InvVect) error { return nil }
func (f *fakeTransport) SendMempool() error                { return nil }
func (f *fakeTransport) SendInv(invs []InvVect) error       { return nil }
func (f *fakeTransport) SendPing(nonce uint64) error {
	f.pings = append(f.pings, nonce)
	return nil
}
func (f *fakeTransport) SendFilterLoad(bits []byte, n uint32, tweak uint32, flag bloom.UpdateFlag) error {
	f.filters++
	return nil
}
func (f *fakeTransport) SendGetAddr() error { return nil }

func newTestPeer() (*Peer, *fakeTransport) {
	tr := &fakeTransport{}
	p := New("10.0.0.1", 9333, tr, Callbacks{})
	return p, tr
}

func TestSendPingRunsContinuationOnMatchingPong(t *testing.T) {
	p, tr := newTestPeer()

	fired := false
	if err := p.SendPing(func() { fired = true }); err != nil {
		t.Fatalf("SendPing: %v", err)
	}
	if len(tr.pings) != 1 {
		t.Fatalf("expected one ping sent, got %d", len(tr.pings))
	}

	p.OnPong(tr.pings[0], 50*time.Millisecond)
	if !fired {
		t.Fatal("continuation did not run after matching pong")
	}
	if p.PingTimeMs() != 50 {
		t.Fatalf("PingTimeMs = %d, want 50", p.PingTimeMs())
	}
}

func TestOnPongIgnoresUnknownNonce(t *testing.T) {
	p, _ := newTestPeer()
	fired := false
	_ = p.SendPing(func() { fired = true })

	p.OnPong(999999, time.Millisecond)
	if fired {
		t.Fatal("continuation ran for a nonce that was never sent")
	}
}

func TestOnPongRunsContinuationExactlyOnce(t *testing.T) {
	p, tr := newTestPeer()
	count := 0
	_ = p.SendPing(func() { count++ })

	p.OnPong(tr.pings[0], time.Millisecond)
	p.OnPong(tr.pings[0], time.Millisecond)
	if count != 1 {
		t.Fatalf("continuation ran %d times, want 1", count)
	}
}

func TestDisconnectClosesTransportAndFiresOnce(t *testing.T) {
	tr := &fakeTransport{}
	disconnects := 0
	p := New("10.0.0.1", 9333, tr, Callbacks{
		OnDisconnected: func(p Session, reason DisconnectReason) { disconnects++ },
	})

	p.Disconnect(DisconnectRequested)
	p.Disconnect(DisconnectRequested)

	if !tr.closed {
		t.Fatal("transport was not closed")
	}
	if disconnects != 1 {
		t.Fatalf("OnDisconnected fired %d times, want 1", disconnects)
	}
	if p.ConnectStatus() != Disconnected {
		t.Fatalf("ConnectStatus = %v, want Disconnected", p.ConnectStatus())
	}
}

func TestScheduleDisconnectFiresTimeout(t *testing.T) {
	tr := &fakeTransport{}
	done := make(chan DisconnectReason, 1)
	p := New("10.0.0.1", 9333, tr, Callbacks{
		OnDisconnected: func(p Session, reason DisconnectReason) { done <- reason },
	})

	p.ScheduleDisconnect(10 * time.Millisecond)
	select {
	case reason := <-done:
		if reason != DisconnectTimedOut {
			t.Fatalf("reason = %v, want DisconnectTimedOut", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("disconnect deadline never fired")
	}
}

func TestScheduleDisconnectZeroCancelsPending(t *testing.T) {
	tr := &fakeTransport{}
	fired := false
	p := New("10.0.0.1", 9333, tr, Callbacks{
		OnDisconnected: func(p Session, reason DisconnectReason) { fired = true },
	})

	p.ScheduleDisconnect(10 * time.Millisecond)
	p.ScheduleDisconnect(0)

	time.Sleep(30 * time.Millisecond)
	if fired {
		t.Fatal("disconnect fired after its deadline was canceled")
	}
}

func TestRerequestBlocksSendsGetBlocks(t *testing.T) {
	p, tr := newTestPeer()
	var h chainhash.Hash
	if err := p.RerequestBlocks(h); err != nil {
		t.Fatalf("RerequestBlocks: %v", err)
	}
	if tr.getBlocks != 1 {
		t.Fatalf("getBlocks sent = %d, want 1", tr.getBlocks)
	}
}
