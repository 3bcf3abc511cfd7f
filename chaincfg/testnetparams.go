// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import "math/big"

// TestNetParams returns the network parameters for the Litecoin test
// network (testnet4).
func TestNetParams() *Params {
	testPowLimit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))

	return &Params{
		Name:        "testnet4",
		Net:         0xf1c8d2fd,
		DefaultPort: "19335",
		DNSSeeds: []DNSSeed{
			{"testnet-seed.litecointools.com", false},
			{"seed-b.litecoin.loshan.co.uk", true},
			{"dnsseed-testnet.thrasher.io", true},
		},

		GenesisHash:      hashFromStr("4966625a4b2851d9fdee139e56211a0d88575f59ed816ff5e6a63deb4e3e1da"),
		GenesisTimestamp: 1486949366,
		GenesisBits:      0x1e0ffff0,

		PowLimit:     testPowLimit,
		PowLimitBits: BigToCompact(testPowLimit),

		TargetTimePerBlock:       150,
		DifficultyInterval:       2016,
		RetargetAdjustmentFactor: 4,

		Checkpoints: []Checkpoint{
			{
				Height:         2016,
				Hash:           hashFromStr("7aff689af48589a14e3394b28e050df189233b8b4bd066286702cf16c0a29b6d"),
				Timestamp:      1486949366,
				DifficultyBits: 0x1e0ffff0,
			},
		},
	}
}
