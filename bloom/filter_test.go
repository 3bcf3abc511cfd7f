// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import "testing"

func TestAddAndMatch(t *testing.T) {
	f := NewFilter(10, 0, 0.000001, UpdateAll)

	data := []byte("deadbeefdeadbeefdeadbeefdeadbeef")
	if f.Matches(data) {
		t.Fatalf("Matches() = true before Add()")
	}

	f.Add(data)
	if !f.Matches(data) {
		t.Fatalf("Matches() = false after Add()")
	}
}

func TestDifferentTweaksProduceDifferentFilters(t *testing.T) {
	data := []byte("some-output-script")

	f1 := NewFilter(100, 1, 0.001, UpdateAll)
	f2 := NewFilter(100, 2, 0.001, UpdateAll)
	f1.Add(data)

	// f2 was never seeded, so a fresh element must not already match
	// (this is a sanity check on hash independence, not a guarantee; a
	// false positive here is vanishingly unlikely at n=100, fp=0.001).
	if f2.Matches(data) {
		t.Errorf("unrelated filter unexpectedly matched before any Add()")
	}

	f2.Add(data)
	if !f1.Matches(data) || !f2.Matches(data) {
		t.Errorf("both filters should match after seeding with the same data")
	}
}

func TestAddOutPoint(t *testing.T) {
	f := NewFilter(10, 7, 0.0001, UpdateAll)
	var txid [32]byte
	txid[0] = 0xAB

	f.AddOutPoint(txid, 3)

	buf := make([]byte, 36)
	copy(buf, txid[:])
	buf[32] = 3
	if !f.Matches(buf) {
		t.Errorf("outpoint tuple did not match after AddOutPoint")
	}
}
