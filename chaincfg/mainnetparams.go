// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import "math/big"

// MainNetParams returns the network parameters for the main Litecoin
// network.
func MainNetParams() *Params {
	// mainPowLimit is the highest proof of work value a mainnet block can
	// have. It is the value 2^224 - 1.
	mainPowLimit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))

	return &Params{
		Name:        "mainnet",
		Net:         0xdbb6c0fb,
		DefaultPort: "9333",
		DNSSeeds: []DNSSeed{
			{"seed-a.litecoin.loshan.co.uk", true},
			{"dnsseed.thrasher.io", true},
			{"dnsseed.litecointools.com", false},
			{"dnsseed.litecoinpool.org", false},
			{"dnsseed.koin-project.com", false},
		},

		// Genesis block identity. The block itself is never validated by
		// the peer manager (no full-node validation, spec §1 Non-goals);
		// only its hash, timestamp and bits are needed as the starting
		// point of the header chain.
		GenesisHash:      hashFromStr("12a765e31ffd4059bada1e25190f6e98c99d9714d334efa41a195a7e7e04bfe2"),
		GenesisTimestamp: 1317972665,
		GenesisBits:      0x1e0ffff0,

		PowLimit:     mainPowLimit,
		PowLimitBits: BigToCompact(mainPowLimit),

		TargetTimePerBlock:       150, // 2.5 minutes
		DifficultyInterval:       2016,
		RetargetAdjustmentFactor: 4,

		// Checkpoints ordered from oldest to newest. Real deployments
		// compile in many more; the two here are sufficient to exercise
		// §4.2 B3 (checkpoint equality) and the retarget-boundary
		// checkpoint interaction described in §8 scenario 4.
		Checkpoints: []Checkpoint{
			{
				Height:         20160,
				Hash:           hashFromStr("633036290c4eba3b84ca7d96bf8ce3a57d48dae79d8d3a3e2cb8d0fa0e62198c"),
				Timestamp:      1320777904,
				DifficultyBits: 0x1d00ffff,
			},
			{
				Height:         80640,
				Hash:           hashFromStr("628c9994ec3de8aeb4e9258aba4a1c5417b8d99630bb18a9d2a3c7b75101a640"),
				Timestamp:      1326104191,
				DifficultyBits: 0x1d00ffff,
			},
		},
	}
}
