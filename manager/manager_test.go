// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package manager

import (
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"

	"github.com/ltcsuite/ltcspv/addrmgr"
	"github.com/ltcsuite/ltcspv/bloom"
	"github.com/ltcsuite/ltcspv/chaincfg"
	"github.com/ltcsuite/ltcspv/peer"
)

func testParams() *chaincfg.Params {
	limit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 240), big.NewInt(1))
	return &chaincfg.Params{
		Name:                     "regtest",
		PowLimit:                 limit,
		PowLimitBits:             chaincfg.BigToCompact(limit),
		TargetTimePerBlock:       150,
		DifficultyInterval:       2016,
		RetargetAdjustmentFactor: 4,
		GenesisHash:              blockHash(0),
		GenesisTimestamp:         1000,
	}
}

func blockHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

// fakeSession is an in-memory peer.Session double: no real Transport,
// just enough bookkeeping to drive the manager through its protocol
// steps and let a test observe what it sent.
type fakeSession struct {
	mu sync.Mutex

	host string
	port uint16

	cb peer.Callbacks

	status    peer.ConnStatus
	version   int32
	services  peer.ServiceFlag
	lastBlock int32
	pingMs    int64
	feePerKb  dcrutil.Amount
	synced    bool
	needsFU   bool
	misbehave bool

	disconnectOnce   sync.Once
	disconnectReason peer.DisconnectReason
	disconnected     bool

	sentGetBlocks    int
	sentGetHeaders   int
	sentFilterLoads  int
	sentMempools     int
	sentInvs         [][]peer.InvVect
	sentGetData      [][]peer.InvVect
	sentGetAddr      int
	rerequested      []chainhash.Hash
	pendingPongs     []func()
}

func newFakeSession(host string, port uint16) *fakeSession {
	return &fakeSession{host: host, port: port, status: peer.Connected, services: peer.SFNodeNetwork | peer.SFNodeBloom}
}

func (f *fakeSession) Host() string               { return f.host }
func (f *fakeSession) Port() uint16                { return f.port }
func (f *fakeSession) ConnectStatus() peer.ConnStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}
func (f *fakeSession) Version() int32              { return f.version }
func (f *fakeSession) Services() peer.ServiceFlag   { return f.services }
func (f *fakeSession) LastBlock() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBlock
}
func (f *fakeSession) SetLastBlock(h int32) {
	f.mu.Lock()
	f.lastBlock = h
	f.mu.Unlock()
}
func (f *fakeSession) PingTimeMs() int64 { return f.pingMs }
func (f *fakeSession) FeePerKb() dcrutil.Amount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feePerKb
}
func (f *fakeSession) SetFeePerKb(v dcrutil.Amount) {
	f.mu.Lock()
	f.feePerKb = v
	f.mu.Unlock()
}
func (f *fakeSession) Misbehaving() bool { return f.misbehave }
func (f *fakeSession) MarkMisbehaving() {
	f.mu.Lock()
	f.misbehave = true
	f.mu.Unlock()
}
func (f *fakeSession) SetSynced(v bool) {
	f.mu.Lock()
	f.synced = v
	f.mu.Unlock()
}
func (f *fakeSession) IsSynced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synced
}
func (f *fakeSession) SetNeedsFilterUpdate(v bool) {
	f.mu.Lock()
	f.needsFU = v
	f.mu.Unlock()
}
func (f *fakeSession) NeedsFilterUpdate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.needsFU
}
// Disconnect mirrors *peer.Peer.Disconnect: it fires at most once and
// notifies the callbacks the same way a real session's transport teardown
// would, so the manager's peer-map bookkeeping stays consistent.
func (f *fakeSession) Disconnect(reason peer.DisconnectReason) {
	f.disconnectOnce.Do(func() {
		f.mu.Lock()
		f.status = peer.Disconnected
		f.disconnected = true
		f.disconnectReason = reason
		cb := f.cb
		f.mu.Unlock()

		if cb.OnDisconnected != nil {
			cb.OnDisconnected(f, reason)
		}
		if cb.OnThreadCleanup != nil {
			cb.OnThreadCleanup(f)
		}
	})
}
func (f *fakeSession) ScheduleDisconnect(d time.Duration) {}
func (f *fakeSession) RerequestBlocks(from chainhash.Hash) error {
	f.mu.Lock()
	f.rerequested = append(f.rerequested, from)
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) SendGetBlocks(locator []chainhash.Hash, stop chainhash.Hash) error {
	f.mu.Lock()
	f.sentGetBlocks++
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) SendGetHeaders(locator []chainhash.Hash, stop chainhash.Hash) error {
	f.mu.Lock()
	f.sentGetHeaders++
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) SendGetData(invs []peer.InvVect) error {
	f.mu.Lock()
	f.sentGetData = append(f.sentGetData, invs)
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) SendMempool() error {
	f.mu.Lock()
	f.sentMempools++
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) SendInv(invs []peer.InvVect) error {
	f.mu.Lock()
	f.sentInvs = append(f.sentInvs, invs)
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) SendGetAddr() error {
	f.mu.Lock()
	f.sentGetAddr++
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) SendFilterLoad(filter *bloom.Filter) error {
	f.mu.Lock()
	f.sentFilterLoads++
	f.mu.Unlock()
	return nil
}

// SendPing only queues the continuation without resolving the barrier;
// a test calls flushPongs to run them, simulating the remote peer's pong
// arriving asynchronously without a real Transport.
func (f *fakeSession) SendPing(onPong func()) error {
	f.mu.Lock()
	f.pendingPongs = append(f.pendingPongs, onPong)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) flushPongs() {
	f.mu.Lock()
	pongs := f.pendingPongs
	f.pendingPongs = nil
	f.mu.Unlock()
	for _, cb := range pongs {
		cb()
	}
}

var _ peer.Session = (*fakeSession)(nil)

type stubResolver struct{}

func (stubResolver) LookupHost(host string) ([]string, error) { return nil, nil }

type stubRand struct{}

func (stubRand) Intn(n int) int { return 0 }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(Config{
		Params:   testParams(),
		Wallet:   newTestWallet(),
		Resolver: stubResolver{},
		Rand:     stubRand{},
		Dial: func(addr *addrmgr.NetAddress, cb peer.Callbacks) (peer.Session, error) {
			return nil, net.ErrClosed
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Disconnect)
	return m
}

func newTestWallet() *stubWallet { return newStubWallet() }

// attachPeer registers a fake session directly into the manager's peer map
// on the loop goroutine and drives OnConnected, bypassing Dial entirely so
// tests control the session's advertised facts precisely. Wiring f.cb to
// the manager's real peer.Callbacks (rather than calling onPeerConnected
// directly) keeps Disconnect()'s bookkeeping consistent with a real
// session's teardown path.
func attachPeer(m *Manager, f *fakeSession) {
	key := peerKeyFor(f)
	f.cb = m.peerCallbacks()
	m.do(func() {
		m.peers[key] = f
		m.peerAddrs[key] = &addrmgr.NetAddress{IP: net.ParseIP("127.0.0.1"), Port: f.port}
	})
	f.cb.OnConnected(f)
	m.do(func() {})
}

func TestGenesisOnlyColdStart(t *testing.T) {
	m := newTestManager(t)
	if h := m.LastBlockHeight(); h != 0 {
		t.Fatalf("LastBlockHeight = %d, want 0", h)
	}
	if got := m.LastBlockTimestamp(); got != 1000 {
		t.Fatalf("LastBlockTimestamp = %d, want 1000", got)
	}
	if p := m.SyncProgress(); p != 0 {
		t.Fatalf("SyncProgress = %v, want 0 before any sync", p)
	}
}

func TestSyncProgressBounds(t *testing.T) {
	m := newTestManager(t)
	m.do(func() {
		m.syncStartHeight = 1
		m.estimatedHeight = 1
	})
	if p := m.SyncProgress(); p < 0.05 {
		t.Fatalf("SyncProgress = %v at sync start with no progress, want >= 0.05", p)
	}
	m.do(func() {
		tip := m.store.LastBlock()
		tip.Height = 1
		m.store.SetLastBlock(tip)
	})
	if p := m.SyncProgress(); p != 1.0 {
		t.Fatalf("SyncProgress = %v once caught up, want 1.0", p)
	}
}

func TestFirstConnectedPeerBecomesDownloadPeer(t *testing.T) {
	m := newTestManager(t)

	p1 := newFakeSession("10.0.0.1", 9333)
	p1.lastBlock = 50
	attachPeer(m, p1)

	if got := m.DownloadPeerName(); got == "" {
		t.Fatalf("download peer not elected after first connection")
	}
	if p1.sentFilterLoads == 0 {
		t.Errorf("elected download peer should receive a filterload")
	}
	if p1.sentGetBlocks == 0 && p1.sentGetHeaders == 0 {
		t.Errorf("elected download peer behind tip should be asked for the chain")
	}
}

func TestOnPeerConnectedRejectsPeerMissingNodeNetwork(t *testing.T) {
	m := newTestManager(t)
	p := newFakeSession("10.0.0.2", 9333)
	p.services = peer.SFNodeBloom // no SFNodeNetwork
	attachPeer(m, p)

	if !p.disconnected {
		t.Fatalf("peer lacking NODE_NETWORK should have been disconnected")
	}
	if p.disconnectReason != peer.DisconnectProtocol {
		t.Errorf("disconnect reason = %v, want DisconnectProtocol", p.disconnectReason)
	}
}

func TestPublishTxFailsWithNotConnectedWhenNoPeers(t *testing.T) {
	m := newTestManager(t)

	var gotErr error
	var wg sync.WaitGroup
	wg.Add(1)
	m.PublishTx(testTx(1), nil, func(err error) {
		gotErr = err
		wg.Done()
	})
	wg.Wait()

	if gotErr == nil {
		t.Fatal("expected an error publishing with no connected peers")
	}
	if e, ok := gotErr.(*Error); !ok || e.Kind != ErrNotConnected {
		t.Fatalf("err = %v, want NOT_CONNECTED", gotErr)
	}
}

func TestPublishTxCallbackFiresAtMostOnce(t *testing.T) {
	m := newTestManager(t)
	p := newFakeSession("10.0.0.3", 9333)
	attachPeer(m, p)

	var calls int
	var mu sync.Mutex
	done := make(chan struct{})
	m.PublishTx(testTx(2), nil, func(err error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(done)
	})

	// Drive the ping barrier the publish path arms.
	for i := 0; i < 3; i++ {
		p.flushPongs()
	}

	// Simulate the peer relaying the tx back, which also fires the
	// callback; at-most-once must hold even if both paths race to fire.
	m.do(func() { m.onRelayedTx(p, testTx(2).Hash) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("callback fired %d times, want exactly 1 (T4)", calls)
	}
}

func TestVerificationSignalAtRelayThreshold(t *testing.T) {
	m := newTestManager(t)
	m.do(func() { m.peerMaxConnections = 2 })

	w := m.wallet.(*stubWallet)
	w.put(testTx(3))

	p1 := newFakeSession("10.0.0.4", 9333)
	p2 := newFakeSession("10.0.0.5", 9333)
	attachPeer(m, p1)
	attachPeer(m, p2)

	m.do(func() { m.onRelayedTx(p1, testTx(3).Hash) })
	if tx, _ := w.TxByHash(testTx(3).Hash); tx.Timestamp != 0 {
		t.Fatalf("tx verified after a single relay, want still unverified below threshold")
	}

	m.do(func() { m.onRelayedTx(p2, testTx(3).Hash) })
	if tx, _ := w.TxByHash(testTx(3).Hash); tx.Timestamp == 0 {
		t.Fatalf("tx not marked verified once relay_count reached peerMaxConnections (T5)")
	}
}

func TestFeeFloorUsesSecondHighest(t *testing.T) {
	m := newTestManager(t)
	p1 := newFakeSession("10.0.0.6", 9333)
	p2 := newFakeSession("10.0.0.7", 9333)
	p3 := newFakeSession("10.0.0.8", 9333)
	attachPeer(m, p1)
	attachPeer(m, p2)
	attachPeer(m, p3)

	m.do(func() {
		p1.feePerKb = 100000
		p2.feePerKb = 10000
		p3.feePerKb = 5000
		m.recomputeFeeFloor()
	})

	w := m.wallet.(*stubWallet)
	got := w.FeePerKb()
	want := dcrutil.Amount(float64(10000) * 1.5)
	if got != want {
		t.Fatalf("wallet fee = %d, want %d (1.5x second-highest 10000)", got, want)
	}
}
